// Package timeutil lets run timestamps and durations be pinned in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is what the ledger stamps runs with and what the orchestrator times
// them with.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// MockClock only moves when told to, or by a fixed step after each Now when
// AutoStep is set.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{current: start}
}

// Now returns the current reading and then applies the auto-step.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.current
	c.current = t.Add(c.step)
	return t
}

// Since measures from t to the current reading. It never steps.
func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(t)
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// AutoStep gives consecutive Now readings a gap of d, so rows stamped in the
// same test sort deterministically.
func (c *MockClock) AutoStep(d time.Duration) {
	c.mu.Lock()
	c.step = d
	c.mu.Unlock()
}
