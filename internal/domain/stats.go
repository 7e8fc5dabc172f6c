package domain

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of samples, or 0 for an empty slice.
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

// Percentile returns the q-quantile of samples using the nearest-rank
// definition: the ceil(q*n)-th smallest sample. For n = 1 the single sample
// is returned for every q. The rank formula is pinned here so rebuilds stay
// deterministic; do not swap in an interpolating variant.
func Percentile(samples []float64, q float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	rank := int(math.Ceil(q * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
