package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lcmerge/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func waitFor(t *testing.T, ch <-chan int, want int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-ch:
			if n >= want {
				return
			}
		case <-deadline:
			t.Fatalf("trigger not called %d times", want)
		}
	}
}

func TestRun_TriggersOnNewRunDirectory(t *testing.T) {
	base := t.TempDir()
	obsDir := filepath.Join(base, "30001011009")
	require.NoError(t, os.MkdirAll(obsDir, 0755))

	w, err := New(base, []string{"30001011009"})
	require.NoError(t, err)
	w.Debounce = 50 * time.Millisecond

	calls := make(chan int, 16)
	n := 0
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			n++
			select {
			case calls <- n:
			default:
			}
			return nil
		})
	}()

	waitFor(t, calls, 1)

	runDir := filepath.Join(obsDir, "A_src015_bkg050-080_bin0.1")
	require.NoError(t, os.Mkdir(runDir, 0755))
	waitFor(t, calls, 2)

	// the new run directory is now watched too
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "nuproducts.log"), []byte("nuproducts done\n"), 0644))
	waitFor(t, calls, 3)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ObservationCreatedLater(t *testing.T) {
	base := t.TempDir()
	w, err := New(base, []string{"30001011010"})
	require.NoError(t, err)
	w.Debounce = 50 * time.Millisecond

	calls := make(chan int, 16)
	n := 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx, func(context.Context) error {
			n++
			select {
			case calls <- n:
			default:
			}
			return errors.New("nothing to do yet")
		})
	}()

	waitFor(t, calls, 1)
	require.NoError(t, os.Mkdir(filepath.Join(base, "30001011010"), 0755))
	waitFor(t, calls, 2)
}

func TestRun_IntervalWithoutEvents(t *testing.T) {
	w, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	w.Interval = 20 * time.Millisecond

	calls := make(chan int, 16)
	n := 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx, func(context.Context) error {
			n++
			select {
			case calls <- n:
			default:
			}
			return nil
		})
	}()
	waitFor(t, calls, 3)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	w, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	assert.NoError(t, w.Run(ctx, func(context.Context) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}
