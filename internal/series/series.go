// Package series holds binned count-rate series and the two arithmetic
// operators used to build a background-subtracted light curve: a weighted sum
// that merges detectors, and a scaled subtraction that removes a background
// estimate. Operators never resample and never modify their inputs.
package series

import (
	"errors"
	"fmt"
	"math"
)

// TimeTolerance is the largest difference, in seconds, allowed between
// corresponding timestamps of two series being combined.
const TimeTolerance = 1e-6

// ErrMisalignedSeries reports two series that do not share the same samples.
var ErrMisalignedSeries = errors.New("misaligned series")

// ErrUnordered reports a series whose timestamps are not strictly increasing.
var ErrUnordered = errors.New("series timestamps not strictly increasing")

// Sample is one time bin.
type Sample struct {
	Time  float64 `json:"time"`
	Rate  float64 `json:"rate"`
	Error float64 `json:"error"`
}

// RateSeries is an ordered sequence of samples with strictly increasing time.
type RateSeries struct {
	Samples []Sample
}

// New returns a series holding a copy of samples.
func New(samples ...Sample) *RateSeries {
	out := make([]Sample, len(samples))
	copy(out, samples)
	return &RateSeries{Samples: out}
}

// Len returns the number of samples. A nil series has length zero.
func (s *RateSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Samples)
}

// Validate checks that timestamps are strictly increasing.
func (s *RateSeries) Validate() error {
	for i := 1; i < s.Len(); i++ {
		if !(s.Samples[i].Time > s.Samples[i-1].Time) {
			return fmt.Errorf("%w: sample %d at t=%v follows t=%v", ErrUnordered, i, s.Samples[i].Time, s.Samples[i-1].Time)
		}
	}
	return nil
}

// CheckAligned returns ErrMisalignedSeries unless a and b have the same length
// and timestamps within TimeTolerance.
func CheckAligned(a, b *RateSeries) error {
	if a.Len() != b.Len() {
		return fmt.Errorf("%w: lengths %d and %d differ", ErrMisalignedSeries, a.Len(), b.Len())
	}
	for i := 0; i < a.Len(); i++ {
		ta, tb := a.Samples[i].Time, b.Samples[i].Time
		if !(math.Abs(ta-tb) <= TimeTolerance) {
			return fmt.Errorf("%w: sample %d at t=%v vs t=%v", ErrMisalignedSeries, i, ta, tb)
		}
	}
	return nil
}

// CombineAdd returns multA*a + multB*b per sample with errors added in
// quadrature. Times are taken from a. Use multA = multB = 1 for a straight
// detector merge.
func CombineAdd(a, b *RateSeries, multA, multB float64) (*RateSeries, error) {
	if err := CheckAligned(a, b); err != nil {
		return nil, err
	}
	out := make([]Sample, a.Len())
	for i := range out {
		sa, sb := a.Samples[i], b.Samples[i]
		out[i] = Sample{
			Time:  sa.Time,
			Rate:  multA*sa.Rate + multB*sb.Rate,
			Error: math.Hypot(multA*sa.Error, multB*sb.Error),
		}
	}
	return &RateSeries{Samples: out}, nil
}

// CombineSubtract returns primary - scale*secondary per sample with errors
// added in quadrature. The scale factor must come from the geometry manifest.
func CombineSubtract(primary, secondary *RateSeries, scale float64) (*RateSeries, error) {
	if err := CheckAligned(primary, secondary); err != nil {
		return nil, err
	}
	out := make([]Sample, primary.Len())
	for i := range out {
		sp, ss := primary.Samples[i], secondary.Samples[i]
		out[i] = Sample{
			Time:  sp.Time,
			Rate:  sp.Rate - scale*ss.Rate,
			Error: math.Hypot(sp.Error, scale*ss.Error),
		}
	}
	return &RateSeries{Samples: out}, nil
}
