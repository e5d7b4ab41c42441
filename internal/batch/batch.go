// Package batch runs the two-pass combination over a set of observations:
// pass one adds detector A and B source and background series for every
// ready pair, pass two subtracts the scaled background from the added source.
// Every artifact that already exists is left alone, so a run can be repeated
// after new detector runs finish without redoing earlier work.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lcmerge/internal/artifact"
	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/manifest"
	"github.com/banshee-data/lcmerge/internal/monitoring"
	"github.com/banshee-data/lcmerge/internal/pairing"
	"github.com/banshee-data/lcmerge/internal/series"
	"github.com/banshee-data/lcmerge/internal/timeutil"
)

// Recorder persists run history. Recording errors are logged and do not
// affect the batch, except BeginRun which must succeed for the run to start.
type Recorder interface {
	BeginRun(ctx context.Context, runID string) error
	RecordOutcome(ctx context.Context, runID string, o Outcome) error
	RecordStats(ctx context.Context, runID, obs string, key geometry.Key, s series.Summary) error
	FinishRun(ctx context.Context, runID string, sum *Summary) error
}

// Config holds the orchestrator's collaborators. Matcher, Inputs and Store
// are required.
type Config struct {
	Matcher  *pairing.Matcher
	Inputs   fsutil.FileSystem // where detector run series are read from
	Store    *artifact.Store
	Manifest *manifest.Manifest // nil behaves like an empty manifest
	Recorder Recorder           // optional
	Clock    timeutil.Clock     // defaults to RealClock
	Workers  int                // defaults to max(1, NumCPU/2)
	MultA    float64            // detector A coefficient, defaults to 1
	MultB    float64            // detector B coefficient, defaults to 1
}

// Orchestrator drives one or more batch runs.
type Orchestrator struct {
	matcher  *pairing.Matcher
	inputs   fsutil.FileSystem
	store    *artifact.Store
	manifest *manifest.Manifest
	recorder Recorder
	clock    timeutil.Clock
	workers  int
	multA    float64
	multB    float64
}

// DefaultWorkers is half the available CPUs, at least one.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()/2)
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Matcher == nil || cfg.Inputs == nil || cfg.Store == nil {
		return nil, errors.New("batch: matcher, inputs and store are required")
	}
	o := &Orchestrator{
		matcher:  cfg.Matcher,
		inputs:   cfg.Inputs,
		store:    cfg.Store,
		manifest: cfg.Manifest,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
		workers:  cfg.Workers,
		multA:    cfg.MultA,
		multB:    cfg.MultB,
	}
	if o.clock == nil {
		o.clock = timeutil.RealClock{}
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers()
	}
	if o.multA == 0 {
		o.multA = 1
	}
	if o.multB == 0 {
		o.multB = 1
	}
	return o, nil
}

// runState is shared by the workers of one run.
type runState struct {
	o   *Orchestrator
	ctx context.Context
	id  string
	sum *Summary
}

func (r *runState) record(out Outcome) {
	r.sum.add(out)
	if out.Status.Failed() {
		monitoring.Logf("%s", out)
	} else {
		monitoring.Debugf("%s", out)
	}
	if r.o.recorder == nil {
		return
	}
	if err := r.o.recorder.RecordOutcome(context.WithoutCancel(r.ctx), r.id, out); err != nil {
		monitoring.Logf("run %s: record outcome: %v", r.id, err)
	}
}

func (r *runState) stats(u unit, s series.Summary) {
	monitoring.Debugf("%s %s: n=%d mean=%.4g snr=%.3g", u.obs, u.key, s.N, s.Mean, s.SNR)
	if r.o.recorder == nil {
		return
	}
	if err := r.o.recorder.RecordStats(context.WithoutCancel(r.ctx), r.id, u.obs, u.key, s); err != nil {
		monitoring.Logf("%s %s: record stats: %v", u.obs, u.key, err)
	}
}

type unit struct {
	obs string
	key geometry.Key
}

// Run processes observations in order. Per-unit problems become outcomes in
// the returned Summary; the error is non-nil only when the run could not
// start or ctx was cancelled. On cancellation the partial Summary is still
// returned and no half-written artifact is left behind.
func (o *Orchestrator) Run(ctx context.Context, observations []string) (*Summary, error) {
	start := o.clock.Now()
	runID := uuid.NewString()
	if o.recorder != nil {
		if err := o.recorder.BeginRun(ctx, runID); err != nil {
			return nil, fmt.Errorf("begin run: %w", err)
		}
	}
	sum := newSummary(runID)
	monitoring.Logf("run %s: %d observations, %d workers", runID, len(observations), o.workers)

	rs := &runState{o: o, ctx: ctx, id: runID, sum: sum}

	units := o.combinePass(ctx, observations, rs.record)
	if ctx.Err() == nil {
		o.subtractPass(ctx, units, rs)
	}

	sum.Elapsed = o.clock.Since(start)
	sum.sort()
	if o.recorder != nil {
		if err := o.recorder.FinishRun(context.WithoutCancel(ctx), runID, sum); err != nil {
			monitoring.Logf("run %s: finish: %v", runID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("run %s cancelled: %w", runID, err)
	}
	return sum, nil
}

// combinePass produces the added artifacts for every ready pair and returns
// the units the subtraction pass should visit: every ready pair, and pairs
// that are no longer ready but whose added artifacts a previous run left
// behind. A pair that is not ready and has nothing to subtract is reported
// once, at the pairing stage.
func (o *Orchestrator) combinePass(ctx context.Context, observations []string, record func(Outcome)) []unit {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	var units []unit
observations:
	for _, obs := range observations {
		for res, err := range o.matcher.Pairs(gctx, obs) {
			if err != nil {
				if ctx.Err() != nil {
					break observations
				}
				record(Outcome{Observation: obs, Stage: StagePairing, Status: StatusFailed, Err: err})
				break
			}
			if !res.Ready() {
				record(pairingOutcome(res))
				if res.Matched() && o.hasAdded(obs, res.Key) {
					units = append(units, unit{obs: obs, key: res.Key})
				}
				continue
			}
			units = append(units, unit{obs: obs, key: res.Key})
			g.Go(func() error {
				o.combine(gctx, res, record)
				return nil
			})
		}
	}
	_ = g.Wait()
	return units
}

func pairingOutcome(res pairing.Result) Outcome {
	st := StatusIncomplete
	if errors.Is(res.Err, pairing.ErrUnmatchedPair) {
		st = StatusUnmatched
	}
	return Outcome{Observation: res.Observation, Key: res.Key, Stage: StagePairing, Status: st, Err: res.Err}
}

func (o *Orchestrator) combine(ctx context.Context, res pairing.Result, record func(Outcome)) {
	for _, kind := range []artifact.Kind{artifact.AddedSource, artifact.AddedBackground} {
		if ctx.Err() != nil {
			return
		}
		out := Outcome{Observation: res.Observation, Key: res.Key, Stage: kind.String()}
		if o.store.Exists(res.Observation, res.Key, kind) {
			out.Status = StatusExists
			record(out)
			continue
		}

		pathA, pathB := res.A.SourcePath(), res.B.SourcePath()
		if kind == artifact.AddedBackground {
			pathA, pathB = res.A.BackgroundPath(), res.B.BackgroundPath()
		}
		a, errA := o.readInput(pathA)
		b, errB := o.readInput(pathB)
		if err := errors.Join(errA, errB); err != nil {
			// An unreadable input is treated like an unfinished run.
			out.Status, out.Err = StatusIncomplete, err
			record(out)
			continue
		}

		merged, err := series.CombineAdd(a, b, o.multA, o.multB)
		if err != nil {
			out.Status, out.Err = classify(err), err
			record(out)
			continue
		}
		out.Status, out.Err = o.write(res.Observation, res.Key, kind, merged)
		record(out)
	}
}

func (o *Orchestrator) subtractPass(ctx context.Context, units []unit, rs *runState) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, u := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.subtract(gctx, u, rs)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) subtract(ctx context.Context, u unit, rs *runState) {
	record := rs.record
	if ctx.Err() != nil {
		return
	}
	out := Outcome{Observation: u.obs, Key: u.key, Stage: artifact.FinalLightCurve.String()}
	if o.store.Exists(u.obs, u.key, artifact.FinalLightCurve) {
		out.Status = StatusExists
		record(out)
		return
	}

	var missing []string
	for _, kind := range []artifact.Kind{artifact.AddedSource, artifact.AddedBackground} {
		if !o.store.Exists(u.obs, u.key, kind) {
			missing = append(missing, kind.String())
		}
	}
	if len(missing) > 0 {
		out.Status = StatusMissingUpstream
		out.Err = fmt.Errorf("%w: %v", ErrMissingUpstream, missing)
		record(out)
		return
	}

	scale, ok := o.scaleFactor(u.obs, u.key)
	if !ok {
		out.Status, out.Err = StatusMissingScaleFactor, ErrMissingScaleFactor
		record(out)
		return
	}

	src, err := o.store.Read(u.obs, u.key, artifact.AddedSource)
	if err != nil {
		out.Status, out.Err = StatusMissingUpstream, fmt.Errorf("%w: %v", ErrMissingUpstream, err)
		record(out)
		return
	}
	bkg, err := o.store.Read(u.obs, u.key, artifact.AddedBackground)
	if err != nil {
		out.Status, out.Err = StatusMissingUpstream, fmt.Errorf("%w: %v", ErrMissingUpstream, err)
		record(out)
		return
	}

	final, err := series.CombineSubtract(src, bkg, scale)
	if err != nil {
		out.Status, out.Err = classify(err), err
		record(out)
		return
	}
	out.Status, out.Err = o.write(u.obs, u.key, artifact.FinalLightCurve, final)
	record(out)

	if out.Status == StatusProduced {
		rs.stats(u, series.Summarize(final))
	}
}

func (o *Orchestrator) hasAdded(obs string, key geometry.Key) bool {
	return o.store.Exists(obs, key, artifact.AddedSource) && o.store.Exists(obs, key, artifact.AddedBackground)
}

func (o *Orchestrator) scaleFactor(obs string, key geometry.Key) (float64, bool) {
	if o.manifest == nil {
		return 0, false
	}
	return o.manifest.ScaleFactor(obs, key)
}

func (o *Orchestrator) readInput(path string) (*series.RateSeries, error) {
	data, err := o.inputs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rs, err := series.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rs, nil
}

func (o *Orchestrator) write(obs string, key geometry.Key, kind artifact.Kind, rs *series.RateSeries) (Status, error) {
	err := o.store.Write(obs, key, kind, rs)
	switch {
	case err == nil:
		return StatusProduced, nil
	case errors.Is(err, artifact.ErrExists):
		return StatusExists, nil
	default:
		return StatusFailed, err
	}
}

func classify(err error) Status {
	if errors.Is(err, series.ErrMisalignedSeries) {
		return StatusMisaligned
	}
	return StatusFailed
}
