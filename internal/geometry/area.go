package geometry

import (
	"fmt"
	"math"
)

// CircleArea returns the area in square pixels of a circle of radius rArc
// arcseconds.
func CircleArea(rArc, pixelScale float64) float64 {
	r := rArc / pixelScale
	return math.Pi * r * r
}

// AnnulusArea returns the area in square pixels of an annulus with the given
// inner and outer radii in arcseconds.
func AnnulusArea(rInArc, rOutArc, pixelScale float64) float64 {
	in := rInArc / pixelScale
	out := rOutArc / pixelScale
	return math.Pi * (out*out - in*in)
}

// ScaleFactor returns the ratio of source-aperture area to background-annulus
// area. Nothing is rounded before the final division.
func ScaleFactor(rSrc, rIn, rOut, pixelScale float64) (float64, error) {
	if err := validateRadii(rSrc, rIn, rOut); err != nil {
		return 0, err
	}
	if math.IsNaN(pixelScale) || math.IsInf(pixelScale, 0) || pixelScale <= 0 {
		return 0, fmt.Errorf("%w: pixel scale must be positive, got %v", ErrInvalidGeometry, pixelScale)
	}
	return CircleArea(rSrc, pixelScale) / AnnulusArea(rIn, rOut, pixelScale), nil
}

// ScaleFactor returns the key's scale factor at the given pixel scale.
func (k Key) ScaleFactor(pixelScale float64) (float64, error) {
	return ScaleFactor(float64(k.SrcRadius), float64(k.BkgInner), float64(k.BkgOuter), pixelScale)
}

// validateRadii enforces r_src > 0 and r_out > r_in >= 0.
func validateRadii(rSrc, rIn, rOut float64) error {
	for _, v := range []float64{rSrc, rIn, rOut} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: radii must be finite (src=%v, in=%v, out=%v)", ErrInvalidGeometry, rSrc, rIn, rOut)
		}
	}
	if rSrc <= 0 {
		return fmt.Errorf("%w: source radius must be positive, got %v", ErrInvalidGeometry, rSrc)
	}
	if rIn < 0 {
		return fmt.Errorf("%w: annulus inner radius must be non-negative, got %v", ErrInvalidGeometry, rIn)
	}
	if rOut <= rIn {
		return fmt.Errorf("%w: annulus outer radius %v must exceed inner radius %v", ErrInvalidGeometry, rOut, rIn)
	}
	return nil
}
