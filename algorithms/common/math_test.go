package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatistics(t *testing.T) {
	data := []float64{7, 1, 3, 9, 5}

	assert.InDelta(t, 5.0, Mean(data), 1e-9)
	assert.InDelta(t, 5.0, Median(data), 1e-9)
	assert.InDelta(t, 2.5, Median([]float64{4, 1, 2, 3}), 1e-9)
	assert.InDelta(t, 1.0, Percentile(data, 0), 1e-9)
	assert.InDelta(t, 9.0, Percentile(data, 1), 1e-9)
	assert.InDelta(t, 2.4, MeanAbsoluteDeviation(data, 5), 1e-9)
	assert.Equal(t, []float64{7, 1, 3, 9, 5}, data, "inputs must not be reordered")

	assert.Zero(t, Mean(nil))
	assert.Zero(t, Median(nil))
	assert.Zero(t, StandardDeviation([]float64{3}))
	assert.Zero(t, CoefficientOfVariation([]float64{0, 0}))
}

func TestPearson(t *testing.T) {
	x := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.0, Pearson(x, []float64{2, 4, 6, 8}), 1e-9)
	assert.InDelta(t, -1.0, Pearson(x, []float64{4, 3, 2, 1}), 1e-9)
	assert.Zero(t, Pearson(x, []float64{5, 5, 5, 5}))
	assert.Zero(t, Pearson(x, []float64{1, 2}))
}

func TestLevels(t *testing.T) {
	assert.InDelta(t, 1/math.Sqrt2, RMS([]float64{1, -1, 0, 0}), 1e-9)
	assert.Equal(t, 0.9, Peak([]float64{0.2, -0.9, 0.5}))
	assert.InDelta(t, -6.0206, AmplitudeToDB(0.5), 1e-3)
	assert.Equal(t, -120.0, AmplitudeToDB(0))
}

func TestClampAndPowers(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0.25, 0.25},
		{3, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp01(tt.in))
	}

	assert.Equal(t, 1, NextPowerOfTwo(0))
	assert.Equal(t, 1024, NextPowerOfTwo(882))
	assert.Equal(t, 256, NextPowerOfTwo(256))
}
