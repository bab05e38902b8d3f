package analyzers

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-critique/algorithms/chroma"
	"github.com/RyanBlaney/sonido-critique/algorithms/spectral"
	"github.com/RyanBlaney/sonido-critique/algorithms/tonal"
	"github.com/RyanBlaney/sonido-critique/metadata"
	"github.com/RyanBlaney/sonido-critique/transcode"
)

const (
	ChromaKeyName   = "chroma-key"
	SpectrumKeyName = "spectrum-key"

	chromaWindow = 4096
	chromaHop    = 2048
	ltasKeyFFT   = 8192
	ltasSegments = 64
)

// ChromaKey correlates the STFT chromagram with Krumhansl-Schmuckler profiles
type ChromaKey struct {
	base
	estimator *tonal.KeyEstimator
}

// NewChromaKey creates the primary harmonic backend
func NewChromaKey() *ChromaKey {
	return &ChromaKey{
		base:      base{name: ChromaKeyName, category: CategoryHarmonic, fidelity: FidelityPrimary},
		estimator: tonal.NewKeyEstimator(tonal.ProfileKrumhansl),
	}
}

// Analyze estimates the key from the time-averaged chroma
func (c *ChromaKey) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	if !audio.HasPCM() {
		return nil, fmt.Errorf("%s: %w", c.name, ErrNoAudio)
	}
	start := time.Now()

	vector, err := chroma.NewChromaSTFTDefault(audio.SampleRate).ComputeMeanChroma(ctx, audio.PCM, chromaWindow, chromaHop)
	if err != nil {
		return nil, fmt.Errorf("%s: chroma: %w", c.name, err)
	}

	return keyResult(c.result(), c.estimator, vector, start)
}

// SpectrumKey folds the long-term average spectrum into chroma and uses Temperley profiles
type SpectrumKey struct {
	base
	estimator *tonal.KeyEstimator
}

// NewSpectrumKey creates the secondary harmonic backend
func NewSpectrumKey() *SpectrumKey {
	return &SpectrumKey{
		base:      base{name: SpectrumKeyName, category: CategoryHarmonic, fidelity: FidelitySecondary},
		estimator: tonal.NewKeyEstimator(tonal.ProfileTemperley),
	}
}

func (s *SpectrumKey) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	if !audio.HasPCM() {
		return nil, fmt.Errorf("%s: %w", s.name, ErrNoAudio)
	}
	start := time.Now()

	fftSize := ltasKeyFFT
	if len(audio.PCM) < fftSize {
		fftSize = chromaWindow
	}
	ltas, err := spectral.ComputeLongTermSpectrum(ctx, audio.PCM, audio.SampleRate, fftSize, ltasSegments)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	vector := chroma.NewChromaSTFTDefault(audio.SampleRate).FromSpectrum(ltas.Magnitude, ltas.FFTSize)
	return keyResult(s.result(), s.estimator, vector, start)
}

func keyResult(res *Result, estimator *tonal.KeyEstimator, vector []float64, start time.Time) (*Result, error) {
	est, err := estimator.Estimate(vector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", res.Analyzer, err)
	}

	scale := metadata.ScaleMajor
	if est.Minor {
		scale = metadata.ScaleMinor
	}

	res.Harmonic = &HarmonicFeatures{
		Key:        metadata.PitchClasses[est.Tonic],
		Scale:      scale,
		Confidence: est.Confidence,
		Clarity:    est.Clarity,
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
