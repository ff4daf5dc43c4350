// Package statistics aggregates answer scores.
package statistics

import (
	"math"
	"math/rand"
	"slices"
)

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 10000

// ReportSeed is the fixed seed reports resample with, so the same session
// always yields the same interval.
const ReportSeed = 20240611

// BootstrapCI computes a percentile bootstrap interval over the mean of
// scores. confidenceLevel should be in (0, 1), e.g. 0.95. Scores are sorted
// before resampling, which makes the result independent of input order for
// a given seed. Fewer than 2 scores give a degenerate interval.
func BootstrapCI(scores []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	n := len(scores)
	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	m := Mean(sorted)
	if n < 2 {
		return ConfidenceInterval{
			Lower:           m,
			Upper:           m,
			Mean:            m,
			ConfidenceLevel: confidenceLevel,
		}
	}

	rng := rand.New(rand.NewSource(seed))
	iters := DefaultBootstrapIterations

	bootMeans := make([]float64, iters)
	sample := make([]float64, n)
	for i := range iters {
		for j := range n {
			sample[j] = sorted[rng.Intn(n)]
		}
		bootMeans[i] = Mean(sample)
	}
	slices.Sort(bootMeans)

	alpha := 1.0 - confidenceLevel
	loIdx := int(math.Floor(alpha / 2.0 * float64(iters)))
	hiIdx := min(int(math.Floor((1.0-alpha/2.0)*float64(iters))), iters-1)

	return ConfidenceInterval{
		Lower:           bootMeans[loIdx],
		Upper:           bootMeans[hiIdx],
		Mean:            m,
		ConfidenceLevel: confidenceLevel,
		NumBootstraps:   iters,
	}
}

// Description summarizes a sample.
type Description struct {
	N      int
	Mean   float64
	Min    float64
	Max    float64
	Median float64
}

// Describe sorts a copy of values before summing, so equal multisets give
// bit-identical results.
func Describe(values []float64) Description {
	if len(values) == 0 {
		return Description{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return Description{
		N:      n,
		Mean:   Mean(sorted),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Median: median,
	}
}

// Mean returns the arithmetic mean of values, or 0 for none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
