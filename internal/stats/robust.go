// Package stats provides robust statistical primitives for price samples.
// No single estimator is safe across all liquidity regimes: the arithmetic
// mean is destroyed by a single extreme listing, the median alone wastes
// information when data is clean, and a fixed trim fraction either over- or
// under-corrects depending on actual contamination. AdaptiveRobustMean picks
// the estimator from the observed contamination instead.
package stats

import (
	"math"
	"sort"

	"github.com/calebwaine/autopricer/internal/domain"
)

// madScale converts a median absolute deviation into an approximation of a
// standard deviation for normally distributed data.
const madScale = 1.4826

// DefaultOutlierThreshold is the MAD-score above which a sample is flagged.
const DefaultOutlierThreshold = 2.5

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// Median returns the middle value of the samples, or 0 for an empty slice.
func Median(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	s := sortedCopy(samples)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// MAD returns the scaled median absolute deviation of the samples.
func MAD(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	med := Median(samples)
	devs := make([]float64, len(samples))
	for i, v := range samples {
		devs[i] = math.Abs(v - med)
	}
	return Median(devs) * madScale
}

// TrimmedMean drops trimFraction of the samples from each tail and averages
// the remainder. A trim that would remove everything falls back to the median.
func TrimmedMean(samples []float64, trimFraction float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	// Ceil keeps the trim meaningful for small samples; a 15% trim of five
	// samples must still drop one from each tail.
	trim := int(math.Ceil(float64(n) * trimFraction))
	if 2*trim >= n {
		return Median(samples)
	}
	s := sortedCopy(samples)
	return Mean(s[trim : n-trim])
}

// InterquartileMean averages the samples strictly between the first and third
// quartiles. When no sample falls strictly inside the interquartile range it
// falls back to the median.
func InterquartileMean(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	s := sortedCopy(samples)
	q1, q3 := quartiles(s)

	var sum float64
	var count int
	for _, v := range s {
		if v > q1 && v < q3 {
			sum += v
			count++
		}
	}
	if count == 0 {
		return Median(samples)
	}
	return sum / float64(count)
}

// Outlier flags a single sample whose MAD-score exceeds the threshold.
type Outlier struct {
	Index   int
	Value   float64
	Score   float64
	Extreme bool
}

// DetectOutliers scores each sample by its absolute deviation from the median
// in MAD units. Samples scoring above threshold are flagged; above 1.5×
// threshold they are marked extreme. Fewer than 4 samples or a zero MAD yields
// no flags, since the dispersion estimate is meaningless there.
func DetectOutliers(samples []float64, threshold float64) []Outlier {
	if len(samples) < 4 {
		return nil
	}
	mad := MAD(samples)
	if mad == 0 {
		return nil
	}
	med := Median(samples)

	var out []Outlier
	for i, v := range samples {
		score := math.Abs(v-med) / mad
		if score > threshold {
			out = append(out, Outlier{
				Index:   i,
				Value:   v,
				Score:   score,
				Extreme: score > 1.5*threshold,
			})
		}
	}
	return out
}

// RemoveOutliers returns the samples with flagged indices dropped.
func RemoveOutliers(samples []float64, outliers []Outlier) []float64 {
	if len(outliers) == 0 {
		return samples
	}
	drop := make(map[int]struct{}, len(outliers))
	for _, o := range outliers {
		drop[o.Index] = struct{}{}
	}
	kept := make([]float64, 0, len(samples)-len(outliers))
	for i, v := range samples {
		if _, ok := drop[i]; !ok {
			kept = append(kept, v)
		}
	}
	return kept
}

// AdaptiveRobustMean selects an estimator from the observed contamination:
//
//	1 sample          → identity, confidence 1
//	<5 samples        → median, 0.7
//	outlier ratio>20% → interquartile mean, 0.75
//	          >10%    → trimmed mean 15%, 0.85
//	          >5%     → trimmed mean 5%, 0.9
//	otherwise         → arithmetic mean, 0.95
func AdaptiveRobustMean(samples []float64) (domain.RobustEstimate, error) {
	n := len(samples)
	if n == 0 {
		return domain.RobustEstimate{}, domain.ErrNoSamples
	}
	if n == 1 {
		return domain.RobustEstimate{
			Value:      samples[0],
			Method:     domain.MethodIdentity,
			Confidence: 1,
			SampleSize: 1,
		}, nil
	}
	if n < 5 {
		return domain.RobustEstimate{
			Value:      Median(samples),
			Method:     domain.MethodMedian,
			Confidence: 0.7,
			SampleSize: n,
		}, nil
	}

	outliers := DetectOutliers(samples, DefaultOutlierThreshold)
	ratio := float64(len(outliers)) / float64(n)

	est := domain.RobustEstimate{SampleSize: n, OutlierCount: len(outliers)}
	switch {
	case ratio > 0.20:
		est.Value = InterquartileMean(samples)
		est.Method = domain.MethodInterquartileMean
		est.Confidence = 0.75
	case ratio > 0.10:
		est.Value = TrimmedMean(samples, 0.15)
		est.Method = domain.MethodTrimmedMean15
		est.Confidence = 0.85
	case ratio > 0.05:
		est.Value = TrimmedMean(samples, 0.05)
		est.Method = domain.MethodTrimmedMean5
		est.Confidence = 0.9
	default:
		est.Value = Mean(samples)
		est.Method = domain.MethodMean
		est.Confidence = 0.95
	}
	return est, nil
}

// CoefficientOfVariation returns stddev/mean, or 0 for degenerate input.
func CoefficientOfVariation(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	m := Mean(samples)
	if m == 0 {
		return 0
	}
	var ss float64
	for _, v := range samples {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss/float64(len(samples))) / math.Abs(m)
}

func sortedCopy(samples []float64) []float64 {
	s := make([]float64, len(samples))
	copy(s, samples)
	sort.Float64s(s)
	return s
}

// quartiles returns Q1 and Q3 of a sorted slice using the median-of-halves
// method (the median itself is excluded from both halves for odd lengths).
func quartiles(sorted []float64) (q1, q3 float64) {
	n := len(sorted)
	if n == 0 {
		return 0, 0
	}
	half := n / 2
	q1 = Median(sorted[:half])
	if n%2 == 1 {
		q3 = Median(sorted[half+1:])
	} else {
		q3 = Median(sorted[half:])
	}
	return q1, q3
}
