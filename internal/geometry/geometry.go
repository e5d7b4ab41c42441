// Package geometry holds the extraction-geometry value type shared by the
// pairing engine and the artifact layout, and the pure area / scale-factor
// arithmetic used to normalise a background annulus to a source aperture.
//
// A geometry combination is one source-aperture radius, one background annulus
// and one time-bin width. Its canonical string form, for example
//
//	src015_bkg050-080_bin0.005
//
// is the only join key between detector directories. Nothing else in the
// module formats or slices these names by hand.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PixelScale is the linear plate scale of the focal-plane detectors in
// arcseconds per pixel.
const PixelScale = 12.3

// MaxRadius is the largest radius, in whole arcseconds, the canonical form can
// carry in its three-digit fields.
const MaxRadius = 999

// ErrInvalidGeometry reports radii or bin widths outside the supported ranges.
// It is a configuration error and is never clamped.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Key identifies one geometry combination.
type Key struct {
	SrcRadius int     `json:"r_src_arcsec"`
	BkgInner  int     `json:"rin_arcsec"`
	BkgOuter  int     `json:"rout_arcsec"`
	BinWidth  float64 `json:"bin_s"`
}

// NewKey validates and returns a Key.
func NewKey(srcRadius, bkgInner, bkgOuter int, binWidth float64) (Key, error) {
	k := Key{SrcRadius: srcRadius, BkgInner: bkgInner, BkgOuter: bkgOuter, BinWidth: binWidth}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Validate checks the radius and bin-width ranges.
func (k Key) Validate() error {
	if err := validateRadii(float64(k.SrcRadius), float64(k.BkgInner), float64(k.BkgOuter)); err != nil {
		return err
	}
	if k.SrcRadius > MaxRadius || k.BkgOuter > MaxRadius {
		return fmt.Errorf("%w: radii must be below %d arcsec (src=%d, out=%d)",
			ErrInvalidGeometry, MaxRadius+1, k.SrcRadius, k.BkgOuter)
	}
	if math.IsNaN(k.BinWidth) || math.IsInf(k.BinWidth, 0) || k.BinWidth <= 0 {
		return fmt.Errorf("%w: bin width must be positive and finite, got %v", ErrInvalidGeometry, k.BinWidth)
	}
	return nil
}

// Canonical returns the directory-name form of the key. Radii are zero padded
// to three digits and the bin width is the shortest decimal that parses back
// to the same float64, so distinct keys never share a name.
func (k Key) Canonical() string {
	return fmt.Sprintf("src%03d_bkg%03d-%03d_bin%s",
		k.SrcRadius, k.BkgInner, k.BkgOuter, strconv.FormatFloat(k.BinWidth, 'f', -1, 64))
}

// String implements fmt.Stringer.
func (k Key) String() string { return k.Canonical() }

// Region returns the unpadded aperture label used in light-curve file names,
// e.g. "src15_bkg50-80".
func (k Key) Region() string {
	return fmt.Sprintf("src%d_bkg%d-%d", k.SrcRadius, k.BkgInner, k.BkgOuter)
}

// ParseKey is the inverse of Canonical. Anything Canonical could not have
// produced is rejected, including unpadded radii and non-canonical bin
// spellings such as "0.10".
func ParseKey(s string) (Key, error) {
	rest, ok := strings.CutPrefix(s, "src")
	if !ok {
		return Key{}, fmt.Errorf("%w: %q lacks src prefix", ErrInvalidGeometry, s)
	}
	src, rest, ok := strings.Cut(rest, "_bkg")
	if !ok {
		return Key{}, fmt.Errorf("%w: %q lacks _bkg field", ErrInvalidGeometry, s)
	}
	annulus, bin, ok := strings.Cut(rest, "_bin")
	if !ok {
		return Key{}, fmt.Errorf("%w: %q lacks _bin field", ErrInvalidGeometry, s)
	}
	in, out, ok := strings.Cut(annulus, "-")
	if !ok {
		return Key{}, fmt.Errorf("%w: %q has malformed annulus", ErrInvalidGeometry, s)
	}

	var radii [3]int
	for i, field := range []string{src, in, out} {
		v, err := parseRadiusField(field)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q: %v", ErrInvalidGeometry, s, err)
		}
		radii[i] = v
	}
	width, err := strconv.ParseFloat(bin, 64)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: bin width: %v", ErrInvalidGeometry, s, err)
	}

	k, err := NewKey(radii[0], radii[1], radii[2], width)
	if err != nil {
		return Key{}, err
	}
	if k.Canonical() != s {
		return Key{}, fmt.Errorf("%w: %q is not in canonical form (want %q)", ErrInvalidGeometry, s, k.Canonical())
	}
	return k, nil
}

func parseRadiusField(field string) (int, error) {
	if len(field) != 3 {
		return 0, fmt.Errorf("radius field %q must be three digits", field)
	}
	for _, r := range field {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("radius field %q must be numeric", field)
		}
	}
	return strconv.Atoi(field)
}
