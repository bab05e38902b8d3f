package analyzers

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-critique/algorithms/common"
	"github.com/RyanBlaney/sonido-critique/algorithms/spectral"
	"github.com/RyanBlaney/sonido-critique/algorithms/windowing"
	"github.com/RyanBlaney/sonido-critique/transcode"
)

const (
	STFTSpectralName = "stft-spectral"
	LTASSpectralName = "ltas-spectral"

	spectralWindow    = 2048
	spectralHop       = 1024
	contrastBands     = 6
	contrastMinFreqHz = 200.0
)

// STFTSpectral averages frame-wise centroid, contrast and flatness over a Hann STFT
type STFTSpectral struct {
	base
	stft *spectral.STFT
}

// NewSTFTSpectral creates the primary spectral backend
func NewSTFTSpectral() *STFTSpectral {
	return &STFTSpectral{
		base: base{name: STFTSpectralName, category: CategorySpectral, fidelity: FidelityPrimary},
		stft: spectral.NewSTFT(),
	}
}

func (s *STFTSpectral) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	if !audio.HasPCM() {
		return nil, fmt.Errorf("%s: %w", s.name, ErrNoAudio)
	}
	start := time.Now()

	window := windowing.NewHann(spectralWindow, false)
	result, err := s.stft.ComputeWithWindow(ctx, audio.PCM, spectralWindow, spectralHop, audio.SampleRate, window)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	contrastDB := spectral.NewSpectralContrast(audio.SampleRate, contrastBands, contrastMinFreqHz).ComputeMean(result.Magnitude)

	res := s.result()
	res.Spectral = &SpectralFeatures{
		Centroid:   spectral.NewSpectralCentroid(audio.SampleRate).ComputeMean(result.Magnitude),
		Contrast:   spectral.NormalizeContrast(contrastDB),
		ContrastDB: contrastDB,
		Flatness:   spectral.NewSpectralFlatness().ComputeMean(result.Magnitude),
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// LTASSpectral derives the same descriptors from a long-term average spectrum
type LTASSpectral struct {
	base
}

// NewLTASSpectral creates the secondary spectral backend
func NewLTASSpectral() *LTASSpectral {
	return &LTASSpectral{
		base: base{name: LTASSpectralName, category: CategorySpectral, fidelity: FidelitySecondary},
	}
}

func (l *LTASSpectral) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	if !audio.HasPCM() {
		return nil, fmt.Errorf("%s: %w", l.name, ErrNoAudio)
	}
	start := time.Now()

	ltas, err := spectral.ComputeLongTermSpectrum(ctx, audio.PCM, audio.SampleRate, spectralWindow, ltasSegments)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.name, err)
	}

	contrastDB := common.Mean(spectral.NewSpectralContrast(audio.SampleRate, contrastBands, contrastMinFreqHz).Compute(ltas.Magnitude))

	res := l.result()
	res.Spectral = &SpectralFeatures{
		Centroid:   spectral.NewSpectralCentroid(audio.SampleRate).Compute(ltas.Magnitude),
		Contrast:   spectral.NormalizeContrast(contrastDB),
		ContrastDB: contrastDB,
		Flatness:   spectral.NewSpectralFlatness().Compute(ltas.Magnitude),
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
