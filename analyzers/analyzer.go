// Package analyzers measures rhythm, harmony, loudness and spectral shape of a track through
// interchangeable backends ordered into primary and secondary tiers.
package analyzers

import (
	"context"
	"errors"
	"time"

	"github.com/RyanBlaney/sonido-critique/transcode"
)

var (
	// ErrUnavailable is returned by placeholders for backends whose tool is missing or disabled
	ErrUnavailable = errors.New("analyzer unavailable")

	// ErrNoAudio is returned by in-process backends when the track could not be decoded
	ErrNoAudio = errors.New("no decoded audio")
)

// Category groups analyzers that produce the same partial features
type Category string

const (
	CategoryRhythm   Category = "rhythm"
	CategoryHarmonic Category = "harmonic"
	CategoryLoudness Category = "loudness"
	CategorySpectral Category = "spectral"
)

// Categories lists every category in report order
func Categories() []Category {
	return []Category{CategoryRhythm, CategoryHarmonic, CategoryLoudness, CategorySpectral}
}

// Fidelity ranks backends within a category
type Fidelity string

const (
	FidelityPrimary     Fidelity = "primary"
	FidelitySecondary   Fidelity = "secondary"
	FidelityUnavailable Fidelity = "unavailable"
)

// Rank orders fidelities, higher is better
func (f Fidelity) Rank() int {
	switch f {
	case FidelityPrimary:
		return 2
	case FidelitySecondary:
		return 1
	default:
		return 0
	}
}

// SignalAnalyzer is one backend for one category
type SignalAnalyzer interface {
	Name() string
	Category() Category
	Fidelity() Fidelity
	Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error)
}

// Result carries the partial features of exactly one category
type Result struct {
	Analyzer string        `json:"analyzer"`
	Category Category      `json:"category"`
	Fidelity Fidelity      `json:"fidelity"`
	Elapsed  time.Duration `json:"elapsed"`

	Rhythm   *RhythmFeatures   `json:"rhythm,omitempty"`
	Harmonic *HarmonicFeatures `json:"harmonic,omitempty"`
	Loudness *LoudnessFeatures `json:"loudness,omitempty"`
	Spectral *SpectralFeatures `json:"spectral,omitempty"`
}

// RhythmFeatures describes tempo and pulse
type RhythmFeatures struct {
	Tempo            float64 `json:"tempo"` // BPM, folded into 60-200
	Confidence       float64 `json:"confidence"`
	BeatStrength     float64 `json:"beat_strength"`
	BeatStrengthBand string  `json:"beat_strength_band"`
	BeatCount        int     `json:"beat_count"`
}

// HarmonicFeatures describes the estimated key
type HarmonicFeatures struct {
	Key        string  `json:"key"`   // C..B, sharps
	Scale      string  `json:"scale"` // major or minor
	Confidence float64 `json:"confidence"`
	Clarity    float64 `json:"clarity"`
}

// LoudnessFeatures describes level and dynamics
type LoudnessFeatures struct {
	IntegratedLUFS    float64  `json:"integrated_lufs"`
	LoudnessRange     float64  `json:"loudness_range"` // LU
	DynamicComplexity float64  `json:"dynamic_complexity"`
	CrestFactor       float64  `json:"crest_factor"`        // dB
	TruePeak          *float64 `json:"true_peak,omitempty"` // dBTP
	Energy            float64  `json:"energy"`
}

// SpectralFeatures describes spectral shape
type SpectralFeatures struct {
	Centroid   float64 `json:"centroid"` // Hz
	Contrast   float64 `json:"contrast"` // normalized 0-1
	ContrastDB float64 `json:"contrast_db"`
	Flatness   float64 `json:"flatness"`
}

// BeatStrengthBand labels a normalized beat strength
func BeatStrengthBand(strength float64) string {
	switch {
	case strength > 0.8:
		return "Strong"
	case strength > 0.5:
		return "Moderate"
	default:
		return "Weak"
	}
}

// base holds the identity every backend reports
type base struct {
	name     string
	category Category
	fidelity Fidelity
}

func (b base) Name() string       { return b.name }
func (b base) Category() Category { return b.category }
func (b base) Fidelity() Fidelity { return b.fidelity }

func (b base) result() *Result {
	return &Result{Analyzer: b.name, Category: b.category, Fidelity: b.fidelity}
}
