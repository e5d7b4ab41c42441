package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/lcmerge/internal/batch"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/series"
	"github.com/banshee-data/lcmerge/internal/version"
)

// Run is one row of batch_runs.
type Run struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Version    string     `json:"version"`
	Produced   int        `json:"produced"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}

// OutcomeRow is one row of unit_outcomes.
type OutcomeRow struct {
	RunID       string       `json:"run_id"`
	Observation string       `json:"obsid"`
	Key         string       `json:"geometry_key,omitempty"`
	Stage       string       `json:"stage"`
	Status      batch.Status `json:"status"`
	Detail      string       `json:"detail,omitempty"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// LightCurveStats is one row of lightcurve_stats.
type LightCurveStats struct {
	Observation string         `json:"obsid"`
	Key         string         `json:"geometry_key"`
	RunID       string         `json:"run_id"`
	Summary     series.Summary `json:"summary"`
	CreatedAt   time.Time      `json:"created_at"`
}

// BeginRun implements batch.Recorder.
func (db *DB) BeginRun(ctx context.Context, runID string) error {
	return retryOnBusy(func() error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO batch_runs (run_id, started_unix_nanos, version) VALUES (?, ?, ?)`,
			runID, db.nowNanos(), version.Version)
		return err
	})
}

// RecordOutcome implements batch.Recorder.
func (db *DB) RecordOutcome(ctx context.Context, runID string, o batch.Outcome) error {
	return retryOnBusy(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO unit_outcomes (run_id, obs_id, geometry_key, stage, status, detail, recorded_unix_nanos)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, o.Observation, o.KeyString(), o.Stage, string(o.Status), o.Detail(), db.nowNanos())
		return err
	})
}

// RecordStats implements batch.Recorder. A final light curve is produced at
// most once, so an existing row for the same geometry is kept.
func (db *DB) RecordStats(ctx context.Context, runID, obs string, key geometry.Key, s series.Summary) error {
	return retryOnBusy(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO lightcurve_stats (
				obs_id, geometry_key, run_id, n_bins, exposure_s, mean_rate, std_rate,
				min_rate, max_rate, rms_var_pct, snr, created_unix_nanos
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (obs_id, geometry_key) DO NOTHING`,
			obs, key.Canonical(), runID, s.N, s.Exposure, s.Mean, s.Std,
			s.Min, s.Max, s.RMSVar, s.SNR, db.nowNanos())
		return err
	})
}

// FinishRun implements batch.Recorder.
func (db *DB) FinishRun(ctx context.Context, runID string, sum *batch.Summary) error {
	return retryOnBusy(func() error {
		res, err := db.ExecContext(ctx, `
			UPDATE batch_runs
			SET finished_unix_nanos = ?, produced = ?, skipped = ?, failed = ?
			WHERE run_id = ?`,
			db.nowNanos(), sum.Produced(), sum.Skipped(), sum.Failed(), runID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_unix_nanos, finished_unix_nanos, version, produced, skipped, failed
		FROM batch_runs
		ORDER BY started_unix_nanos DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run.
func (db *DB) GetRun(ctx context.Context, runID string) (Run, error) {
	row := db.QueryRowContext(ctx, `
		SELECT run_id, started_unix_nanos, finished_unix_nanos, version, produced, skipped, failed
		FROM batch_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := s.Scan(&r.RunID, &started, &finished, &r.Version, &r.Produced, &r.Skipped, &r.Failed); err != nil {
		return Run{}, err
	}
	r.StartedAt = fromNanos(started)
	if finished.Valid {
		t := fromNanos(finished.Int64)
		r.FinishedAt = &t
	}
	return r, nil
}

// Outcomes returns the outcomes of a run in recording order.
func (db *DB) Outcomes(ctx context.Context, runID string) ([]OutcomeRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, obs_id, geometry_key, stage, status, detail, recorded_unix_nanos
		FROM unit_outcomes
		WHERE run_id = ?
		ORDER BY outcome_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var (
			o   OutcomeRow
			st  string
			rec int64
		)
		if err := rows.Scan(&o.RunID, &o.Observation, &o.Key, &o.Stage, &st, &o.Detail, &rec); err != nil {
			return nil, err
		}
		o.Status = batch.Status(st)
		o.RecordedAt = fromNanos(rec)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Stats returns the light-curve statistics of an observation ordered by key.
func (db *DB) Stats(ctx context.Context, obs string) ([]LightCurveStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT obs_id, geometry_key, run_id, n_bins, exposure_s, mean_rate, std_rate,
		       min_rate, max_rate, rms_var_pct, snr, created_unix_nanos
		FROM lightcurve_stats
		WHERE obs_id = ?
		ORDER BY geometry_key`, obs)
	if err != nil {
		return nil, fmt.Errorf("list stats for %s: %w", obs, err)
	}
	defer rows.Close()

	var out []LightCurveStats
	for rows.Next() {
		var (
			ls      LightCurveStats
			s       = &ls.Summary
			created int64
		)
		if err := rows.Scan(&ls.Observation, &ls.Key, &ls.RunID, &s.N, &s.Exposure, &s.Mean, &s.Std,
			&s.Min, &s.Max, &s.RMSVar, &s.SNR, &created); err != nil {
			return nil, err
		}
		ls.CreatedAt = fromNanos(created)
		out = append(out, ls)
	}
	return out, rows.Err()
}
