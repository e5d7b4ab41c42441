package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	if c.Since(start) < 0 {
		t.Error("Since should never be negative")
	}
}

func TestMockClock(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	if got := c.Now(); !got.Equal(base) {
		t.Fatalf("Now() = %v, want %v", got, base)
	}
	if got := c.Now(); !got.Equal(base) {
		t.Fatalf("Now() without auto-step moved to %v", got)
	}

	c.Advance(90 * time.Second)
	if got := c.Since(base); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}

	c.AutoStep(time.Second)
	first, second := c.Now(), c.Now()
	if !first.Equal(base.Add(90 * time.Second)) {
		t.Errorf("first stepped reading = %v", first)
	}
	if second.Sub(first) != time.Second {
		t.Errorf("auto-step gap = %v, want 1s", second.Sub(first))
	}
}
