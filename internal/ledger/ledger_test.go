package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lcmerge/internal/batch"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/series"
	"github.com/banshee-data/lcmerge/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := timeutil.NewMockClock(epoch)
	clock.AutoStep(time.Second)
	db.SetClock(clock)
	return db, clock
}

func mustKey(t *testing.T) geometry.Key {
	t.Helper()
	k, err := geometry.NewKey(15, 50, 80, 0.1)
	require.NoError(t, err)
	return k
}

func TestOpen_MigratesToLatest(t *testing.T) {
	t.Parallel()

	db, _ := openTestDB(t)
	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	for _, table := range []string{"batch_runs", "unit_outcomes", "lightcurve_stats"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	// reopening an up-to-date ledger is a no-op
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDownAndUp(t *testing.T) {
	t.Parallel()

	db, _ := openTestDB(t)
	require.NoError(t, db.MigrateDown())
	v, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'lightcurve_stats'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}

func TestMigrateVersion_Fresh(t *testing.T) {
	t.Parallel()

	db, err := OpenNoMigrate(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateForce(1))
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	db, _ := openTestDB(t)
	ctx := context.Background()
	key := mustKey(t)

	require.NoError(t, db.BeginRun(ctx, "run-1"))
	require.NoError(t, db.RecordOutcome(ctx, "run-1", batch.Outcome{
		Observation: "30001011009", Key: key, Stage: "added_source", Status: batch.StatusProduced,
	}))
	require.NoError(t, db.RecordOutcome(ctx, "run-1", batch.Outcome{
		Observation: "30001011009", Stage: batch.StagePairing, Status: batch.StatusFailed,
		Err: errors.New("permission denied"),
	}))

	run, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, epoch, run.StartedAt)

	outs, err := db.Outcomes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, key.Canonical(), outs[0].Key)
	assert.Equal(t, batch.StatusProduced, outs[0].Status)
	assert.Empty(t, outs[1].Key)
	assert.Equal(t, "permission denied", outs[1].Detail)
	assert.True(t, outs[1].RecordedAt.After(outs[0].RecordedAt))

	require.NoError(t, db.FinishRun(ctx, "run-1", &batch.Summary{}))
	run, err = db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.After(run.StartedAt))
}

func TestFinishRun_Unknown(t *testing.T) {
	t.Parallel()

	db, _ := openTestDB(t)
	err := db.FinishRun(context.Background(), "nope", &batch.Summary{})
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = db.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestRecordOutcome_RequiresRun(t *testing.T) {
	t.Parallel()

	db, _ := openTestDB(t)
	err := db.RecordOutcome(context.Background(), "missing", batch.Outcome{
		Observation: "30001011009", Stage: batch.StagePairing, Status: batch.StatusUnmatched,
	})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestListRuns_NewestFirst(t *testing.T) {
	t.Parallel()

	db, _ := openTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.BeginRun(ctx, id))
	}

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})

	runs, err = db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStats_FirstWriteWins(t *testing.T) {
	t.Parallel()

	db, _ := openTestDB(t)
	ctx := context.Background()
	key := mustKey(t)
	require.NoError(t, db.BeginRun(ctx, "run-1"))

	first := series.Summary{N: 10, Exposure: 0.9, Mean: 3, Std: 0.5, Min: 2, Max: 4, RMSVar: 16.7, SNR: 12}
	require.NoError(t, db.RecordStats(ctx, "run-1", "30001011009", key, first))
	require.NoError(t, db.RecordStats(ctx, "run-1", "30001011009", key, series.Summary{N: 1}))

	stats, err := db.Stats(ctx, "30001011009")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, first, stats[0].Summary)
	assert.Equal(t, "run-1", stats[0].RunID)
	assert.Equal(t, key.Canonical(), stats[0].Key)

	none, err := db.Stats(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
