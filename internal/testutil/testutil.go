// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the on-disk layout of detector runs so tests of
// the pairing engine, the orchestrator and the CLI build identical fixtures.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/lcmerge/internal/completion"
	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/pairing"
	"github.com/banshee-data/lcmerge/internal/series"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// MustKey builds a geometry key or fails the test.
func MustKey(t *testing.T, src, in, out int, bin float64) geometry.Key {
	t.Helper()
	k, err := geometry.NewKey(src, in, out, bin)
	AssertNoError(t, err)
	return k
}

// Flat returns n samples starting at t0 spaced by bin, all with the same rate
// and error.
func Flat(n int, t0, bin, rate, rateErr float64) *series.RateSeries {
	out := make([]series.Sample, n)
	for i := range out {
		out[i] = series.Sample{Time: t0 + float64(i)*bin, Rate: rate, Error: rateErr}
	}
	return &series.RateSeries{Samples: out}
}

// RunFixture describes one detector run to lay down on a filesystem.
type RunFixture struct {
	Observation string
	Detector    pairing.Detector
	Key         geometry.Key
	Source      *series.RateSeries
	Background  *series.RateSeries
	// Complete appends the success marker to the sentinel log.
	Complete bool
}

// WriteRun creates the run directory under base and returns the run.
// Nil series are not written, which models an extraction that died early.
func WriteRun(t *testing.T, fsys fsutil.FileSystem, base string, f RunFixture) pairing.DetectorRun {
	t.Helper()

	run := pairing.DetectorRun{
		Observation: f.Observation,
		Detector:    f.Detector,
		Key:         f.Key,
		Location:    filepath.Join(base, f.Observation, pairing.RunDirName(f.Detector, f.Key)),
	}
	AssertNoError(t, fsys.MkdirAll(run.Location, 0755))

	log := "nuproducts started\n"
	if f.Complete {
		log += "\n" + completion.DefaultMarker + "\n"
	}
	AssertNoError(t, fsys.WriteFile(filepath.Join(run.Location, completion.DefaultSentinelName), []byte(log), 0644))

	if f.Source != nil {
		writeSeries(t, fsys, run.SourcePath(), f.Source)
	}
	if f.Background != nil {
		writeSeries(t, fsys, run.BackgroundPath(), f.Background)
	}
	return run
}

// WritePair writes complete A and B runs sharing the same series.
func WritePair(t *testing.T, fsys fsutil.FileSystem, base, obs string, key geometry.Key, src, bkg *series.RateSeries) {
	t.Helper()
	for _, det := range pairing.Detectors {
		WriteRun(t, fsys, base, RunFixture{
			Observation: obs,
			Detector:    det,
			Key:         key,
			Source:      src,
			Background:  bkg,
			Complete:    true,
		})
	}
}

func writeSeries(t *testing.T, fsys fsutil.FileSystem, path string, s *series.RateSeries) {
	t.Helper()
	data, err := series.Marshal(s)
	AssertNoError(t, err)
	AssertNoError(t, fsys.WriteFile(path, data, 0644))
}
