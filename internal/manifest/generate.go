package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/pairing"
)

// Annulus is a background annulus in whole arcseconds.
type Annulus struct {
	Inner int
	Outer int
}

// Generate computes a record for every observation, detector, source radius
// and annulus, in that nesting order. Areas and factors are stored unrounded.
func Generate(observations []string, srcRadii []int, annuli []Annulus, pixelScale float64) ([]Record, error) {
	records := make([]Record, 0, len(observations)*len(pairing.Detectors)*len(srcRadii)*len(annuli))
	for _, obs := range observations {
		for _, det := range pairing.Detectors {
			for _, r := range srcRadii {
				for _, an := range annuli {
					sf, err := geometry.ScaleFactor(float64(r), float64(an.Inner), float64(an.Outer), pixelScale)
					if err != nil {
						return nil, fmt.Errorf("%s/%s src%d_bkg%d-%d: %w", obs, det, r, an.Inner, an.Outer, err)
					}
					records = append(records, Record{
						Observation: obs,
						Detector:    det,
						SrcRadius:   r,
						BkgInner:    an.Inner,
						BkgOuter:    an.Outer,
						SrcArea:     geometry.CircleArea(float64(r), pixelScale),
						BkgArea:     geometry.AnnulusArea(float64(an.Inner), float64(an.Outer), pixelScale),
						ScaleFactor: sf,
					})
				}
			}
		}
	}
	return records, nil
}

// Write validates records and writes them as an indented JSON array,
// replacing path atomically.
func Write(fsys fsutil.FileSystem, path string, records []Record) error {
	if _, err := New(records); err != nil {
		return err
	}
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return fsutil.WriteFileAtomic(fsys, path, append(data, '\n'), 0644)
}
