package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	require.InDelta(t, 40.0, Mean([]float64{10, 20, 30, 40, 100}), 1e-9)
	require.Zero(t, Mean(nil))
}

func TestPercentileNearestRank(t *testing.T) {
	samples := []float64{10, 20, 30, 40, 100}

	// ceil(0.95*5) = 5 -> the 5th smallest value.
	require.InDelta(t, 100.0, Percentile(samples, 0.95), 1e-9)
	// ceil(0.5*5) = 3 -> the median.
	require.InDelta(t, 30.0, Percentile(samples, 0.5), 1e-9)
}

func TestPercentileSingleSample(t *testing.T) {
	require.InDelta(t, 42.0, Percentile([]float64{42}, 0.95), 1e-9)
	require.InDelta(t, 42.0, Percentile([]float64{42}, 0.01), 1e-9)
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	samples := []float64{100, 10, 50}
	_ = Percentile(samples, 0.95)
	require.Equal(t, []float64{100, 10, 50}, samples)
}

func TestPercentileUnsortedInput(t *testing.T) {
	require.InDelta(t, 150.0, Percentile([]float64{150, 50}, 0.95), 1e-9)
	require.Zero(t, Percentile(nil, 0.95))
}
