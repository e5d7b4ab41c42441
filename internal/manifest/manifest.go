// Package manifest loads and generates the scale-factor manifest: one record
// per observation, detector and aperture/annulus pair giving the extraction
// areas and the background scale factor. The combination engine treats a
// loaded manifest as authoritative and never recomputes geometry itself.
package manifest

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/monitoring"
	"github.com/banshee-data/lcmerge/internal/pairing"
)

// DefaultFileName is the manifest name written by the region generator.
const DefaultFileName = "pixel_areas.json"

// factorTolerance is how far detector A and B factors may drift before the
// disagreement is logged.
const factorTolerance = 1e-9

// Record is one manifest entry.
type Record struct {
	Observation string           `json:"obsid"`
	Detector    pairing.Detector `json:"det"`
	SrcRadius   int              `json:"r_src_arcsec"`
	BkgInner    int              `json:"rin_arcsec"`
	BkgOuter    int              `json:"rout_arcsec"`
	SrcArea     float64          `json:"src_area_pix"`
	BkgArea     float64          `json:"bkg_area_pix"`
	ScaleFactor float64          `json:"scale_factor"`
}

type lookupKey struct {
	obs          string
	det          pairing.Detector
	src, in, out int
}

func (r Record) lookupKey() lookupKey {
	return lookupKey{r.Observation, r.Detector, r.SrcRadius, r.BkgInner, r.BkgOuter}
}

// Validate checks identity fields, radii and the scale factor.
func (r Record) Validate() error {
	if r.Observation == "" {
		return fmt.Errorf("record has empty obsid")
	}
	if !r.Detector.Valid() {
		return fmt.Errorf("record %s: unknown detector %q", r.Observation, r.Detector)
	}
	// any valid bin width will do; only the radii are under test here
	if _, err := geometry.NewKey(r.SrcRadius, r.BkgInner, r.BkgOuter, 1); err != nil {
		return fmt.Errorf("record %s/%s: %w", r.Observation, r.Detector, err)
	}
	if math.IsNaN(r.ScaleFactor) || math.IsInf(r.ScaleFactor, 0) || r.ScaleFactor <= 0 {
		return fmt.Errorf("record %s/%s src%d_bkg%d-%d: scale factor must be positive, got %v",
			r.Observation, r.Detector, r.SrcRadius, r.BkgInner, r.BkgOuter, r.ScaleFactor)
	}
	return nil
}

// Manifest is an immutable, indexed set of records.
type Manifest struct {
	records []Record
	index   map[lookupKey]int
}

// New indexes records. Duplicate identities and invalid records are errors.
func New(records []Record) (*Manifest, error) {
	m := &Manifest{
		records: make([]Record, len(records)),
		index:   make(map[lookupKey]int, len(records)),
	}
	copy(m.records, records)
	for i, r := range m.records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}
		k := r.lookupKey()
		if j, dup := m.index[k]; dup {
			return nil, fmt.Errorf("manifest entries %d and %d both describe %s/%s src%d_bkg%d-%d",
				j, i, r.Observation, r.Detector, r.SrcRadius, r.BkgInner, r.BkgOuter)
		}
		m.index[k] = i
	}
	return m, nil
}

// Parse decodes a JSON array of records. An empty array is a valid, empty
// manifest.
func Parse(data []byte) (*Manifest, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}
	return New(records)
}

// Load reads and parses the manifest at path.
func Load(fsys fsutil.FileSystem, path string) (*Manifest, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Len returns the number of records.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.records)
}

// Records returns a copy of the records in file order.
func (m *Manifest) Records() []Record {
	out := make([]Record, m.Len())
	if m != nil {
		copy(out, m.records)
	}
	return out
}

// Lookup returns the record for one detector and geometry. The bin width of
// key is irrelevant to the scale factor and ignored.
func (m *Manifest) Lookup(obs string, det pairing.Detector, key geometry.Key) (Record, bool) {
	if m == nil {
		return Record{}, false
	}
	i, ok := m.index[lookupKey{obs, det, key.SrcRadius, key.BkgInner, key.BkgOuter}]
	if !ok {
		return Record{}, false
	}
	return m.records[i], true
}

// ScaleFactor returns the factor used to subtract the merged background of a
// geometry. Detector A's record wins; detector B's is used when A has none.
func (m *Manifest) ScaleFactor(obs string, key geometry.Key) (float64, bool) {
	a, okA := m.Lookup(obs, pairing.DetectorA, key)
	b, okB := m.Lookup(obs, pairing.DetectorB, key)
	switch {
	case okA && okB:
		if math.Abs(a.ScaleFactor-b.ScaleFactor) > factorTolerance {
			monitoring.Logf("manifest: %s %s: detector factors differ (A=%v, B=%v), using A",
				obs, key, a.ScaleFactor, b.ScaleFactor)
		}
		return a.ScaleFactor, true
	case okA:
		return a.ScaleFactor, true
	case okB:
		return b.ScaleFactor, true
	}
	return 0, false
}
