package chroma

import (
	"context"
	"math"

	"github.com/RyanBlaney/sonido-critique/algorithms/spectral"
	"github.com/RyanBlaney/sonido-critique/algorithms/windowing"
)

// Bins is the number of pitch classes, C first
const Bins = 12

// ChromaSTFT folds magnitude spectra onto the 12 pitch classes
type ChromaSTFT struct {
	sampleRate int
	stft       *spectral.STFT
	tuningFreq float64 // A4
	minFreq    float64
	maxFreq    float64
}

// NewChromaSTFT creates a chroma calculator restricted to minFreq..maxFreq
func NewChromaSTFT(sampleRate int, tuningFreq, minFreq, maxFreq float64) *ChromaSTFT {
	return &ChromaSTFT{
		sampleRate: sampleRate,
		stft:       spectral.NewSTFT(),
		tuningFreq: tuningFreq,
		minFreq:    minFreq,
		maxFreq:    maxFreq,
	}
}

// NewChromaSTFTDefault uses A4=440Hz and the 80-5000 Hz band where fundamentals and
// their lower harmonics live
func NewChromaSTFTDefault(sampleRate int) *ChromaSTFT {
	return NewChromaSTFT(sampleRate, 440.0, 80.0, 5000.0)
}

// ComputeMeanChroma runs a Hann-windowed STFT and returns the time-averaged chroma,
// each frame normalized to unit sum before averaging
func (cs *ChromaSTFT) ComputeMeanChroma(ctx context.Context, signal []float64, windowSize, hopSize int) ([]float64, error) {
	window := windowing.NewHann(windowSize, false)
	result, err := cs.stft.ComputeWithWindow(ctx, signal, windowSize, hopSize, cs.sampleRate, window)
	if err != nil {
		return nil, err
	}

	mapping := cs.binMapping(result.FreqBins, result.FreqResolution)
	mean := make([]float64, Bins)
	frames := 0

	for _, spectrum := range result.Magnitude {
		frame := fold(spectrum, mapping)
		if normalizeSum(frame) {
			for i, v := range frame {
				mean[i] += v
			}
			frames++
		}
	}

	if frames > 0 {
		for i := range mean {
			mean[i] /= float64(frames)
		}
	}
	return mean, nil
}

// FromSpectrum folds a single magnitude spectrum (DC..Nyquist of an fftSize transform)
func (cs *ChromaSTFT) FromSpectrum(magnitude []float64, fftSize int) []float64 {
	mapping := cs.binMapping(len(magnitude), float64(cs.sampleRate)/float64(fftSize))
	frame := fold(magnitude, mapping)
	normalizeSum(frame)
	return frame
}

func fold(spectrum []float64, mapping []int) []float64 {
	frame := make([]float64, Bins)
	for f, magnitude := range spectrum {
		if bin := mapping[f]; bin >= 0 {
			frame[bin] += magnitude * magnitude
		}
	}
	return frame
}

// binMapping maps each FFT bin to a pitch class, or -1 outside the band
func (cs *ChromaSTFT) binMapping(freqBins int, freqResolution float64) []int {
	mapping := make([]int, freqBins)
	for f := range freqBins {
		frequency := float64(f) * freqResolution
		if frequency < cs.minFreq || frequency > cs.maxFreq {
			mapping[f] = -1
			continue
		}
		midi := int(math.Round(cs.frequencyToMIDI(frequency)))
		mapping[f] = ((midi % Bins) + Bins) % Bins
	}
	return mapping
}

// frequencyToMIDI: A4 is note 69, and C is pitch class 0
func (cs *ChromaSTFT) frequencyToMIDI(frequency float64) float64 {
	return 69.0 + 12.0*math.Log2(frequency/cs.tuningFreq)
}

func normalizeSum(frame []float64) bool {
	total := 0.0
	for _, v := range frame {
		total += v
	}
	if total <= 1e-10 {
		return false
	}
	for i := range frame {
		frame[i] /= total
	}
	return true
}
