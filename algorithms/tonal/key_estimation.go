package tonal

import (
	"errors"
	"fmt"
	"slices"

	"github.com/RyanBlaney/sonido-critique/algorithms/common"
)

// KeyProfile is a pair of 12-element major/minor key templates with the tonic first
type KeyProfile struct {
	Name  string
	Major [12]float64
	Minor [12]float64
}

var (
	// ProfileKrumhansl holds the Krumhansl-Kessler probe-tone ratings
	ProfileKrumhansl = KeyProfile{
		Name:  "krumhansl",
		Major: [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88},
		Minor: [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17},
	}

	// ProfileTemperley holds Temperley's corpus-derived weights
	ProfileTemperley = KeyProfile{
		Name:  "temperley",
		Major: [12]float64{5.0, 2.0, 3.5, 2.0, 4.5, 4.0, 2.0, 4.5, 2.0, 3.5, 1.5, 4.0},
		Minor: [12]float64{5.0, 2.0, 3.5, 4.5, 2.0, 4.0, 2.0, 4.5, 3.5, 2.0, 1.5, 4.0},
	}
)

// ErrNoTonalCenter means no key correlates positively with the chroma, as with a flat vector
var ErrNoTonalCenter = errors.New("chroma has no tonal center")

// KeyEstimate is the best of the 24 major/minor candidates
type KeyEstimate struct {
	Tonic      int       `json:"tonic"` // pitch class, 0 = C
	Minor      bool      `json:"minor"`
	Confidence float64   `json:"confidence"` // best Pearson r clamped to [0, 1]
	Clarity    float64   `json:"clarity"`    // relative gap between best and second best
	Scores     []float64 `json:"scores"`     // 0-11 major, 12-23 minor
}

// KeyEstimator correlates a chroma vector with every rotation of a profile
type KeyEstimator struct {
	profile KeyProfile
}

// NewKeyEstimator creates an estimator using profile
func NewKeyEstimator(profile KeyProfile) *KeyEstimator {
	return &KeyEstimator{profile: profile}
}

// Estimate picks the key whose rotated profile correlates best with chroma
func (ke *KeyEstimator) Estimate(chroma []float64) (KeyEstimate, error) {
	if len(chroma) != 12 {
		return KeyEstimate{}, fmt.Errorf("chroma must have 12 bins, got %d", len(chroma))
	}
	if common.Peak(chroma) == 0 {
		return KeyEstimate{}, fmt.Errorf("chroma carries no energy")
	}

	scores := make([]float64, 24)
	for tonic := range 12 {
		scores[tonic] = common.Pearson(chroma, rotate(ke.profile.Major, tonic))
		scores[12+tonic] = common.Pearson(chroma, rotate(ke.profile.Minor, tonic))
	}

	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	if !(scores[best] > 0) {
		return KeyEstimate{}, ErrNoTonalCenter
	}

	return KeyEstimate{
		Tonic:      best % 12,
		Minor:      best >= 12,
		Confidence: common.Clamp01(scores[best]),
		Clarity:    clarity(scores),
		Scores:     scores,
	}, nil
}

// rotate aligns the profile's tonic with pitch class tonic: element i of the result is
// the weight of pitch class i in that key
func rotate(profile [12]float64, tonic int) []float64 {
	out := make([]float64, 12)
	for i := range out {
		out[i] = profile[(i-tonic+12)%12]
	}
	return out
}

func clarity(scores []float64) float64 {
	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	slices.Reverse(sorted)
	if sorted[0] <= 0 {
		return 0
	}
	return common.Clamp01((sorted[0] - sorted[1]) / sorted[0])
}
