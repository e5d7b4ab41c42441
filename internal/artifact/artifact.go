// Package artifact stores the combined light-curve products under
// <base>/<obs>/<canonical key>/. Artifacts are created once, published with
// an atomic rename, and never overwritten.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/series"
)

// ErrExists is returned by Write when the target artifact is already present.
var ErrExists = errors.New("artifact already exists")

// Kind is one of the three combined products.
type Kind int

const (
	AddedSource Kind = iota
	AddedBackground
	FinalLightCurve
)

// Kinds lists every kind in production order.
var Kinds = []Kind{AddedSource, AddedBackground, FinalLightCurve}

func (k Kind) String() string {
	switch k {
	case AddedSource:
		return "added_source"
	case AddedBackground:
		return "added_background"
	case FinalLightCurve:
		return "final_light_curve"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FileName is the artifact's name inside its geometry directory.
func (k Kind) FileName(key geometry.Key) string {
	switch k {
	case AddedSource:
		return "added_src.txt"
	case AddedBackground:
		return "added_bkg.txt"
	default:
		return "final_LC_" + key.Region() + ".txt"
	}
}

// Store reads and writes artifacts on a FileSystem.
type Store struct {
	FS   fsutil.FileSystem
	Base string
}

// NewStore returns a Store rooted at base.
func NewStore(fsys fsutil.FileSystem, base string) *Store {
	return &Store{FS: fsys, Base: base}
}

// Dir is the directory holding every artifact of one geometry.
func (s *Store) Dir(obs string, key geometry.Key) string {
	return filepath.Join(s.Base, obs, key.Canonical())
}

// Path is the location of one artifact.
func (s *Store) Path(obs string, key geometry.Key, kind Kind) string {
	return filepath.Join(s.Dir(obs, key), kind.FileName(key))
}

// Exists reports whether the artifact has been published. A present artifact
// is taken as complete; it is not re-validated.
func (s *Store) Exists(obs string, key geometry.Key, kind Kind) bool {
	return s.FS.Exists(s.Path(obs, key, kind))
}

// Read decodes a published artifact.
func (s *Store) Read(obs string, key geometry.Key, kind Kind) (*series.RateSeries, error) {
	path := s.Path(obs, key, kind)
	data, err := s.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rs, err := series.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rs, nil
}

// Write publishes rs. It returns ErrExists, and leaves the present file
// alone, if the artifact already exists, including one published by another
// process between the existence check and the publish.
func (s *Store) Write(obs string, key geometry.Key, kind Kind, rs *series.RateSeries) error {
	path := s.Path(obs, key, kind)
	if s.FS.Exists(path) {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	data, err := series.Marshal(rs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := s.FS.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := fsutil.WriteFileExclusive(s.FS, path, data, 0644); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return err
	}
	return nil
}
