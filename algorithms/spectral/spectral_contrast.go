package spectral

import (
	"math"
	"slices"
)

// ContrastFullScaleDB maps mean band contrast onto the 0-1 balance scale
const ContrastFullScaleDB = 30.0

// SpectralContrast measures the peak-to-valley ratio inside octave bands.
// Well separated mixes show high contrast; masked mixes are flat within each band.
type SpectralContrast struct {
	sampleRate int
	numBands   int
	minFreq    float64
	quantile   float64
	bandEdges  []int
	numBins    int
}

// NewSpectralContrast creates a calculator with numBands octave bands starting at minFreq
func NewSpectralContrast(sampleRate, numBands int, minFreq float64) *SpectralContrast {
	return &SpectralContrast{
		sampleRate: sampleRate,
		numBands:   numBands,
		minFreq:    minFreq,
		quantile:   0.2,
	}
}

// Compute returns per-band contrast in dB for one magnitude spectrum
func (sc *SpectralContrast) Compute(magnitudeSpectrum []float64) []float64 {
	contrast := make([]float64, sc.numBands)
	if len(magnitudeSpectrum) < 2 {
		return contrast
	}

	if sc.numBins != len(magnitudeSpectrum) {
		sc.initializeBands(len(magnitudeSpectrum))
	}

	for band := range sc.numBands {
		start, end := sc.bandEdges[band], sc.bandEdges[band+1]
		if start >= end {
			continue
		}
		contrast[band] = sc.bandContrast(magnitudeSpectrum[start:end])
	}
	return contrast
}

// ComputeMean averages band contrast over all bands and frames, in dB
func (sc *SpectralContrast) ComputeMean(spectrogram [][]float64) float64 {
	sum, n := 0.0, 0
	for _, frame := range spectrogram {
		for _, c := range sc.Compute(frame) {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// NormalizeContrast maps contrast in dB onto [0, 1]
func NormalizeContrast(contrastDB float64) float64 {
	return math.Max(0, math.Min(1, contrastDB/ContrastFullScaleDB))
}

func (sc *SpectralContrast) bandContrast(band []float64) float64 {
	power := make([]float64, len(band))
	for i, mag := range band {
		power[i] = mag * mag
	}
	slices.Sort(power)

	count := max(1, int(sc.quantile*float64(len(power))))

	valley, peak := 0.0, 0.0
	for i := range count {
		valley += power[i]
		peak += power[len(power)-1-i]
	}
	valley /= float64(count)
	peak /= float64(count)

	if peak <= 1e-12 {
		return 0
	}
	return 10 * math.Log10((peak+1e-12)/(valley+1e-12))
}

func (sc *SpectralContrast) initializeBands(numBins int) {
	sc.numBins = numBins
	sc.bandEdges = make([]int, sc.numBands+1)

	fftSize := float64((numBins - 1) * 2)
	for i := 0; i <= sc.numBands; i++ {
		freq := sc.minFreq * math.Pow(2, float64(i))
		bin := int(math.Round(freq * fftSize / float64(sc.sampleRate)))
		sc.bandEdges[i] = min(max(bin, 0), numBins)
	}
}
