package common

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistics helpers shared by the analyzers; empty input yields 0 throughout

// Mean calculates the arithmetic mean using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// CoefficientOfVariation is stddev/mean, or 0 when the mean is 0
func CoefficientOfVariation(data []float64) float64 {
	m := Mean(data)
	if m == 0 {
		return 0.0
	}
	return StandardDeviation(data) / math.Abs(m)
}

// Percentile calculates the p-th percentile (p between 0 and 1)
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 || p < 0 || p > 1 {
		return 0.0
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Median returns the middle value, averaging the two central values for even lengths
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// MeanAbsoluteDeviation is the mean distance of each value from center
func MeanAbsoluteDeviation(data []float64, center float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range data {
		sum += math.Abs(v - center)
	}
	return sum / float64(len(data))
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Norm(data, 2) / math.Sqrt(float64(len(data)))
}

// Peak returns the largest absolute sample value
func Peak(data []float64) float64 {
	peak := 0.0
	for _, v := range data {
		peak = math.Max(peak, math.Abs(v))
	}
	return peak
}

// Pearson returns the correlation coefficient, or 0 when either input is constant
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0.0
	}
	if StandardDeviation(x) == 0 || StandardDeviation(y) == 0 {
		return 0.0
	}
	return stat.Correlation(x, y, nil)
}

// Clamp bounds value to [lo, hi]
func Clamp(value, lo, hi float64) float64 {
	if math.IsNaN(value) {
		return lo
	}
	return math.Max(lo, math.Min(hi, value))
}

// Clamp01 bounds value to [0, 1]
func Clamp01(value float64) float64 {
	return Clamp(value, 0, 1)
}

// NextPowerOfTwo returns the smallest power of two >= n
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// AmplitudeToDB converts a linear amplitude ratio to decibels, flooring at -120 dB
func AmplitudeToDB(amplitude float64) float64 {
	if amplitude <= 1e-6 {
		return -120.0
	}
	return 20 * math.Log10(amplitude)
}
