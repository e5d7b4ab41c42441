// Package pairing joins detector-A runs to their detector-B counterparts by
// canonical geometry key and decides which pairs are ready to combine.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/banshee-data/lcmerge/internal/completion"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/monitoring"
)

var (
	// ErrUnmatchedPair means detector A has a run for a key that detector B
	// lacks. The key is skipped; nothing is inferred for the missing side.
	ErrUnmatchedPair = errors.New("unmatched pair")
	// ErrIncompletePair means at least one side has not finished. The key is
	// retried on the next invocation.
	ErrIncompletePair = errors.New("incomplete pair")
)

// Result is one geometry key of an observation. Err is nil when both runs
// exist and are complete; otherwise it wraps ErrUnmatchedPair or
// ErrIncompletePair and B may be zero.
type Result struct {
	Observation string
	Key         geometry.Key
	A           DetectorRun
	B           DetectorRun
	Err         error
}

// Ready reports whether the pair can be combined.
func (r Result) Ready() bool { return r.Err == nil }

// Matched reports whether both detector runs exist, complete or not.
func (r Result) Matched() bool { return !errors.Is(r.Err, ErrUnmatchedPair) }

// Matcher enumerates pairs from a RunSource, gating them on a Checker.
type Matcher struct {
	Source  RunSource
	Checker completion.Checker
}

// NewMatcher returns a Matcher.
func NewMatcher(src RunSource, checker completion.Checker) *Matcher {
	return &Matcher{Source: src, Checker: checker}
}

// Pairs lazily yields one Result per detector-A run of obs. A non-nil error
// means enumeration itself failed and the sequence ends after it.
func (m *Matcher) Pairs(ctx context.Context, obs string) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		runs, err := m.Source.Runs(ctx, obs, DetectorA)
		if err != nil {
			yield(Result{Observation: obs}, fmt.Errorf("enumerate %s: %w", obs, err))
			return
		}
		for _, a := range runs {
			if err := ctx.Err(); err != nil {
				yield(Result{Observation: obs}, err)
				return
			}
			if !yield(m.match(ctx, a), nil) {
				return
			}
		}
	}
}

func (m *Matcher) match(ctx context.Context, a DetectorRun) Result {
	res := Result{Observation: a.Observation, Key: a.Key, A: a}

	b, found, err := m.Source.Lookup(ctx, a.Observation, DetectorB, a.Key)
	switch {
	case err != nil:
		res.Err = fmt.Errorf("%w: lookup detector B: %v", ErrIncompletePair, err)
		monitoring.Logf("pairing: %s %s: %v", a.Observation, a.Key, res.Err)
		return res
	case !found:
		res.Err = fmt.Errorf("%w: no detector B run", ErrUnmatchedPair)
		monitoring.Logf("pairing: %s %s: %v", a.Observation, a.Key, res.Err)
		return res
	}
	res.B = b

	aDone := m.Checker.IsComplete(ctx, a.Location)
	bDone := m.Checker.IsComplete(ctx, b.Location)
	if aDone && bDone {
		return res
	}
	var pending string
	switch {
	case !aDone && !bDone:
		pending = "A and B"
	case !aDone:
		pending = "A"
	default:
		pending = "B"
	}
	res.Err = fmt.Errorf("%w: detector %s not finished", ErrIncompletePair, pending)
	monitoring.Logf("pairing: %s %s: %v", a.Observation, a.Key, res.Err)
	return res
}
