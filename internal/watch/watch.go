// Package watch re-runs a trigger whenever the extraction product tree
// changes, so combination keeps pace with extractions as they finish.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/lcmerge/internal/monitoring"
)

// DefaultDebounce is how long the tree must stay quiet before a trigger.
const DefaultDebounce = 2 * time.Second

// Trigger is one pass of work. Its error is logged; watching continues.
type Trigger func(ctx context.Context) error

// Watcher watches <base>, <base>/<obs> and every run directory below them.
// fsnotify is not recursive, so directories are added as they appear.
type Watcher struct {
	Base         string
	Observations []string
	Debounce     time.Duration
	// Interval forces a pass even without events; zero disables it.
	Interval time.Duration

	fw      *fsnotify.Watcher
	watched map[string]bool
}

// New returns a Watcher with the default debounce.
func New(base string, observations []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		Base:         base,
		Observations: observations,
		Debounce:     DefaultDebounce,
		fw:           fw,
		watched:      make(map[string]bool),
	}, nil
}

// Run calls trigger once, then again after each quiet period following a
// change, until ctx is done. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context, trigger Trigger) error {
	defer w.fw.Close()

	w.pass(ctx, trigger)

	var tick <-chan time.Time
	if w.Interval > 0 {
		t := time.NewTicker(w.Interval)
		defer t.Stop()
		tick = t.C
	}
	debounce := time.NewTimer(w.debounce())
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if !w.relevant(ev) {
				continue
			}
			monitoring.Debugf("watch: %s", ev)
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				delete(w.watched, ev.Name)
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					w.add(ev.Name)
				}
			}
			debounce.Reset(w.debounce())
		case err, ok := <-w.fw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			monitoring.Logf("watch: %v", err)
		case <-debounce.C:
			w.pass(ctx, trigger)
		case <-tick:
			w.pass(ctx, trigger)
		}
	}
}

func (w *Watcher) pass(ctx context.Context, trigger Trigger) {
	if ctx.Err() != nil {
		return
	}
	if err := trigger(ctx); err != nil && ctx.Err() == nil {
		monitoring.Logf("watch: pass failed: %v", err)
	}
	w.refresh()
}

func (w *Watcher) debounce() time.Duration {
	if w.Debounce <= 0 {
		return DefaultDebounce
	}
	return w.Debounce
}

// relevant drops chmod-only events and hidden temporary files.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return !strings.HasPrefix(filepath.Base(ev.Name), ".")
}

// refresh adds any observation or run directory created since the last call.
func (w *Watcher) refresh() {
	w.add(w.Base)
	for _, obs := range w.Observations {
		obsDir := filepath.Join(w.Base, obs)
		if !w.add(obsDir) {
			continue
		}
		entries, err := os.ReadDir(obsDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				w.add(filepath.Join(obsDir, e.Name()))
			}
		}
	}
}

// add watches dir once. It reports whether dir is being watched.
func (w *Watcher) add(dir string) bool {
	if w.watched[dir] {
		return true
	}
	if err := w.fw.Add(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			monitoring.Logf("watch: add %s: %v", dir, err)
		}
		return false
	}
	w.watched[dir] = true
	return true
}

