package spectral

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-critique/algorithms/windowing"
	"gonum.org/v1/gonum/dsp/fourier"
)

// LongTermSpectrum is a time-averaged magnitude spectrum
type LongTermSpectrum struct {
	Magnitude  []float64 `json:"magnitude"` // DC..Nyquist
	SampleRate int       `json:"sample_rate"`
	FFTSize    int       `json:"fft_size"`
	Segments   int       `json:"segments"`
}

// ComputeLongTermSpectrum averages Hann-windowed gonum FFT magnitudes over at most
// maxSegments evenly spaced segments of fftSize samples
func ComputeLongTermSpectrum(ctx context.Context, signal []float64, sampleRate, fftSize, maxSegments int) (*LongTermSpectrum, error) {
	if fftSize <= 0 || maxSegments <= 0 {
		return nil, fmt.Errorf("invalid fft size %d or segment count %d", fftSize, maxSegments)
	}
	if len(signal) < fftSize {
		return nil, fmt.Errorf("signal too short: %d samples, need %d", len(signal), fftSize)
	}

	available := len(signal) / fftSize
	segments := min(available, maxSegments)
	stride := (len(signal) - fftSize) / max(1, segments-1)
	if segments == 1 {
		stride = 0
	}

	transform := fourier.NewFFT(fftSize)
	window := windowing.NewHann(fftSize, false)

	frame := make([]float64, fftSize)
	coeffs := make([]complex128, fftSize/2+1)
	avg := make([]float64, fftSize/2+1)

	for s := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := s * stride
		copy(frame, signal[start:start+fftSize])
		if err := window.ApplyInPlace(frame); err != nil {
			return nil, err
		}

		coeffs = transform.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			avg[k] += cmplx.Abs(c)
		}
	}

	for k := range avg {
		avg[k] /= float64(segments)
	}

	return &LongTermSpectrum{
		Magnitude:  avg,
		SampleRate: sampleRate,
		FFTSize:    fftSize,
		Segments:   segments,
	}, nil
}

// Frequency returns the center frequency of bin k
func (l *LongTermSpectrum) Frequency(k int) float64 {
	return BinFrequency(k, l.FFTSize, l.SampleRate)
}
