package series

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the descriptive statistics reported for a light curve.
type Summary struct {
	N        int     `json:"n"`
	Exposure float64 `json:"exposure_s"`
	Mean     float64 `json:"mean_rate"`
	Std      float64 `json:"std_rate"`
	Min      float64 `json:"min_rate"`
	Max      float64 `json:"max_rate"`
	// RMSVar is the standard deviation as a percentage of the mean.
	RMSVar float64 `json:"rms_var_pct"`
	// SNR is the mean rate over the mean error, zero when the mean error is zero.
	SNR float64 `json:"snr"`
}

// Summarize computes a Summary over the bins whose rate and error are both
// defined; NaN bins are left out. Std is the population standard deviation.
// A series with no defined bins yields a zero Summary.
func Summarize(s *RateSeries) Summary {
	var times, rates, errs []float64
	for i := 0; i < s.Len(); i++ {
		sm := s.Samples[i]
		if math.IsNaN(sm.Rate) || math.IsNaN(sm.Error) {
			continue
		}
		times = append(times, sm.Time)
		rates = append(rates, sm.Rate)
		errs = append(errs, sm.Error)
	}
	n := len(rates)
	if n == 0 {
		return Summary{}
	}

	mean, variance := stat.PopMeanVariance(rates, nil)
	out := Summary{
		N:        n,
		Exposure: times[n-1] - times[0],
		Mean:     mean,
		Std:      math.Sqrt(variance),
		Min:      floats.Min(rates),
		Max:      floats.Max(rates),
	}
	if mean != 0 {
		out.RMSVar = out.Std / mean * 100
	}
	if meanErr := stat.Mean(errs, nil); meanErr > 0 {
		out.SNR = mean / meanErr
	}
	return out
}
