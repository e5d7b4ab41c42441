package pairing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/monitoring"
)

// Detector names one of the two focal-plane modules.
type Detector string

const (
	DetectorA Detector = "A"
	DetectorB Detector = "B"
)

// Detectors lists both modules in processing order.
var Detectors = []Detector{DetectorA, DetectorB}

// Valid reports whether d is A or B.
func (d Detector) Valid() bool { return d == DetectorA || d == DetectorB }

// DetectorRun is one extraction for one observation, detector and geometry.
// It is produced upstream and only ever read here.
type DetectorRun struct {
	Observation string
	Detector    Detector
	Key         geometry.Key
	Location    string
}

// SourcePath is the source-region rate series inside the run directory.
func (r DetectorRun) SourcePath() string {
	return filepath.Join(r.Location, fmt.Sprintf("nu%s%s01_sr.txt", r.Observation, r.Detector))
}

// BackgroundPath is the background-region rate series inside the run directory.
func (r DetectorRun) BackgroundPath() string {
	return filepath.Join(r.Location, fmt.Sprintf("nu%s%s01_bk.txt", r.Observation, r.Detector))
}

// RunDirName is the directory name of a run, e.g. "A_src015_bkg050-080_bin0.1".
func RunDirName(det Detector, key geometry.Key) string {
	return string(det) + "_" + key.Canonical()
}

// RunSource enumerates detector runs. Implementations must be safe for
// concurrent use.
type RunSource interface {
	// Runs lists every run of one detector under an observation. An
	// observation with no runs yields an empty slice, not an error.
	Runs(ctx context.Context, obs string, det Detector) ([]DetectorRun, error)
	// Lookup finds the run for an exact geometry key.
	Lookup(ctx context.Context, obs string, det Detector, key geometry.Key) (DetectorRun, bool, error)
}

// DirSource reads runs from <Base>/<obs>/<det>_<canonical key>/ directories.
type DirSource struct {
	FS   fsutil.FileSystem
	Base string
}

// NewDirSource returns a DirSource rooted at base.
func NewDirSource(fsys fsutil.FileSystem, base string) *DirSource {
	return &DirSource{FS: fsys, Base: base}
}

// Runs implements RunSource. Directory names that do not parse as a
// canonical geometry key are logged and ignored.
func (s *DirSource) Runs(ctx context.Context, obs string, det Detector) ([]DetectorRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obsDir := filepath.Join(s.Base, obs)
	entries, err := s.FS.ReadDir(obsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", obsDir, err)
	}

	prefix := string(det) + "_"
	var runs []DetectorRun
	for _, e := range entries {
		name, ok := strings.CutPrefix(e.Name(), prefix)
		if !ok || !e.IsDir() {
			continue
		}
		key, err := geometry.ParseKey(name)
		if err != nil {
			monitoring.Logf("pairing: ignoring %s/%s: %v", obs, e.Name(), err)
			continue
		}
		runs = append(runs, DetectorRun{
			Observation: obs,
			Detector:    det,
			Key:         key,
			Location:    filepath.Join(obsDir, e.Name()),
		})
	}
	return runs, nil
}

// Lookup implements RunSource.
func (s *DirSource) Lookup(ctx context.Context, obs string, det Detector, key geometry.Key) (DetectorRun, bool, error) {
	if err := ctx.Err(); err != nil {
		return DetectorRun{}, false, err
	}
	loc := filepath.Join(s.Base, obs, RunDirName(det, key))
	info, err := s.FS.Stat(loc)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DetectorRun{}, false, nil
		}
		return DetectorRun{}, false, fmt.Errorf("stat %s: %w", loc, err)
	}
	if !info.IsDir() {
		return DetectorRun{}, false, nil
	}
	return DetectorRun{Observation: obs, Detector: det, Key: key, Location: loc}, true, nil
}

// MemorySource is an in-memory RunSource for tests and dry runs.
type MemorySource struct {
	mu   sync.RWMutex
	runs map[memKey]DetectorRun
}

type memKey struct {
	obs string
	det Detector
	key string
}

// NewMemorySource returns a MemorySource holding runs.
func NewMemorySource(runs ...DetectorRun) *MemorySource {
	s := &MemorySource{runs: make(map[memKey]DetectorRun)}
	for _, r := range runs {
		s.Add(r)
	}
	return s
}

// Add registers a run, replacing any run with the same identity.
func (s *MemorySource) Add(r DetectorRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[memKey{r.Observation, r.Detector, r.Key.Canonical()}] = r
}

// Runs implements RunSource, ordered by canonical key.
func (s *MemorySource) Runs(ctx context.Context, obs string, det Detector) ([]DetectorRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DetectorRun
	for k, r := range s.runs {
		if k.obs == obs && k.det == det {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Canonical() < out[j].Key.Canonical() })
	return out, nil
}

// Lookup implements RunSource.
func (s *MemorySource) Lookup(ctx context.Context, obs string, det Detector, key geometry.Key) (DetectorRun, bool, error) {
	if err := ctx.Err(); err != nil {
		return DetectorRun{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[memKey{obs, det, key.Canonical()}]
	return r, ok, nil
}
