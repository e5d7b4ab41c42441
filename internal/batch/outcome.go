package batch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/monitoring"
)

var (
	// ErrMissingUpstream means the subtraction pass found no added-source or
	// added-background artifact for its geometry.
	ErrMissingUpstream = errors.New("missing upstream artifact")
	// ErrMissingScaleFactor means the manifest has no record for a geometry.
	// Partial manifests are normal during incremental processing.
	ErrMissingScaleFactor = errors.New("no scale factor in manifest")
)

// StagePairing labels outcomes decided before any artifact is attempted.
const StagePairing = "pairing"

// Status classifies what happened to one unit of work.
type Status string

const (
	StatusProduced           Status = "produced"
	StatusExists             Status = "exists"
	StatusUnmatched          Status = "unmatched"
	StatusIncomplete         Status = "incomplete"
	StatusMissingUpstream    Status = "missing_upstream"
	StatusMissingScaleFactor Status = "missing_scale_factor"
	StatusMisaligned         Status = "misaligned"
	StatusFailed             Status = "failed"
)

// Failed reports whether the status counts as a failure rather than a skip.
// Failures are scoped to their own unit and never abort the batch.
func (s Status) Failed() bool {
	return s == StatusMisaligned || s == StatusFailed
}

// Skipped reports whether the status is an expected, retry-later skip or a
// no-op on an existing artifact.
func (s Status) Skipped() bool {
	return s != StatusProduced && !s.Failed()
}

// Outcome records what happened to one artifact, or to one pair at the
// pairing stage.
type Outcome struct {
	Observation string
	Key         geometry.Key
	Stage       string
	Status      Status
	Err         error
}

// KeyString is the canonical key, or "" for observation-level outcomes.
func (o Outcome) KeyString() string {
	if o.Key == (geometry.Key{}) {
		return ""
	}
	return o.Key.Canonical()
}

// Detail is the error text, if any.
func (o Outcome) Detail() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func (o Outcome) String() string {
	s := fmt.Sprintf("%s %s %s: %s", o.Observation, o.KeyString(), o.Stage, o.Status)
	if o.Err != nil {
		s += " (" + o.Err.Error() + ")"
	}
	return s
}

// Summary aggregates the outcomes of one run.
type Summary struct {
	RunID    string
	Outcomes []Outcome
	Elapsed  time.Duration

	mu     sync.Mutex
	counts map[Status]int
}

func newSummary(runID string) *Summary {
	return &Summary{RunID: runID, counts: make(map[Status]int)}
}

func (s *Summary) add(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outcomes = append(s.Outcomes, o)
	s.counts[o.Status]++
}

// Count returns the number of outcomes with the given status.
func (s *Summary) Count(st Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[st]
}

// Produced is the number of artifacts written by the run.
func (s *Summary) Produced() int { return s.Count(StatusProduced) }

// Skipped is the number of skip outcomes.
func (s *Summary) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for st, c := range s.counts {
		if st.Skipped() {
			n += c
		}
	}
	return n
}

// Failed is the number of failure outcomes.
func (s *Summary) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for st, c := range s.counts {
		if st.Failed() {
			n += c
		}
	}
	return n
}

// Failures returns the failure outcomes.
func (s *Summary) Failures() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Status.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// sort orders outcomes by observation, key and stage so reports are stable
// regardless of worker scheduling.
func (s *Summary) sort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.Outcomes, func(i, j int) bool {
		a, b := s.Outcomes[i], s.Outcomes[j]
		if a.Observation != b.Observation {
			return a.Observation < b.Observation
		}
		if ak, bk := a.KeyString(), b.KeyString(); ak != bk {
			return ak < bk
		}
		return stageOrder(a.Stage) < stageOrder(b.Stage)
	})
}

func stageOrder(stage string) int {
	switch stage {
	case StagePairing:
		return 0
	case "added_source":
		return 1
	case "added_background":
		return 2
	}
	return 3
}

// Log writes the end-of-run report: counts by status, then every failure.
func (s *Summary) Log() {
	monitoring.Logf("run %s finished in %s: %d produced, %d skipped, %d failed",
		s.RunID, s.Elapsed.Round(time.Millisecond), s.Produced(), s.Skipped(), s.Failed())
	for _, st := range []Status{StatusExists, StatusUnmatched, StatusIncomplete, StatusMissingUpstream, StatusMissingScaleFactor} {
		if n := s.Count(st); n > 0 {
			monitoring.Logf("  %-22s %d", st, n)
		}
	}
	for _, o := range s.Failures() {
		monitoring.Logf("  FAILED %s", o)
	}
}
