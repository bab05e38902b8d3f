package spectral

import "math"

// SpectralFlatness is the ratio of geometric to arithmetic mean of the power spectrum.
// Noise approaches 1, pure tones approach 0.
type SpectralFlatness struct {
	epsilon float64
}

// NewSpectralFlatness creates a new flatness calculator
func NewSpectralFlatness() *SpectralFlatness {
	return &SpectralFlatness{epsilon: 1e-10}
}

// Compute returns flatness for one magnitude spectrum; the DC bin is ignored
func (sf *SpectralFlatness) Compute(magnitudeSpectrum []float64) float64 {
	if len(magnitudeSpectrum) < 2 {
		return 0
	}

	bins := magnitudeSpectrum[1:]
	logSum, sum := 0.0, 0.0
	for _, mag := range bins {
		p := mag*mag + sf.epsilon
		logSum += math.Log(p)
		sum += p
	}

	n := float64(len(bins))
	arithmetic := sum / n
	if arithmetic <= sf.epsilon {
		return 0
	}
	geometric := math.Exp(logSum / n)

	return math.Min(1, geometric/arithmetic)
}

// ComputeMean averages flatness over frames that carry energy
func (sf *SpectralFlatness) ComputeMean(spectrogram [][]float64) float64 {
	sum, n := 0.0, 0
	for _, frame := range spectrogram {
		if energy(frame) <= 1e-9 {
			continue
		}
		sum += sf.Compute(frame)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func energy(frame []float64) float64 {
	e := 0.0
	for _, v := range frame {
		e += v * v
	}
	return e
}
