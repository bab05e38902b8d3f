// Package describe turns a feature record into the qualitative summary shown to users and
// handed to the feedback model.
package describe

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-critique/features"
)

// band is an exclusive lower threshold: values above it get the label
type band struct {
	above float64
	label string
}

var (
	loudnessBands = []band{
		{-10, "Very loud - possibly over-compressed"},
		{-14, "Loud - competitive streaming level"},
		{-18, "Moderate - balanced for streaming"},
	}
	loudnessFloor = "Quiet - could benefit from mastering"

	dynamicsBands = []band{{0.8, "Excellent"}, {0.6, "Good"}, {0.4, "Moderate"}}
	dynamicsFloor = "Limited"

	balanceBands = []band{{0.8, "Excellent separation"}, {0.6, "Good balance"}, {0.4, "Fair balance"}}
	balanceFloor = "Muddy - frequency masking issues"

	complexityBands = []band{{0.7, "Highly complex arrangement"}, {0.4, "Moderately complex"}}
	complexityFloor = "Simple and focused"
)

// tempo bands use inclusive lower edges
var tempoBands = []struct {
	below float64
	label string
}{
	{70, "Very slow"},
	{90, "Slow"},
	{120, "Moderate"},
	{140, "Upbeat"},
	{160, "Fast"},
}

const tempoCeiling = "Very fast"

func classify(value float64, bands []band, floor string) string {
	for _, b := range bands {
		if value > b.above {
			return b.label
		}
	}
	return floor
}

// TempoBand labels a tempo in BPM
func TempoBand(bpm float64) string {
	for _, b := range tempoBands {
		if bpm < b.below {
			return b.label
		}
	}
	return tempoCeiling
}

// LoudnessBand labels integrated loudness in LUFS
func LoudnessBand(lufs float64) string {
	return classify(lufs, loudnessBands, loudnessFloor)
}

// DynamicsBand labels a normalized dynamics score
func DynamicsBand(score float64) string {
	return classify(score, dynamicsBands, dynamicsFloor)
}

// BalanceBand labels normalized spectral balance
func BalanceBand(balance float64) string {
	return classify(balance, balanceBands, balanceFloor)
}

// ComplexityBand labels the complexity score
func ComplexityBand(complexity float64) string {
	return classify(complexity, complexityBands, complexityFloor)
}

// Describe maps every dimension of the record onto its band. It is pure.
func Describe(r features.Record) Summary {
	dynamicsQuality := DynamicsBand(r.DynamicsScore)

	s := Summary{
		Title:  r.Title,
		Artist: r.Artist,
		Genre:  r.Genre,
		Tempo: Rated{
			Value:       round(r.Tempo.Value, 1),
			Quality:     TempoBand(r.Tempo.Value),
			Description: fmt.Sprintf("%s tempo at %.0f BPM", TempoBand(r.Tempo.Value), r.Tempo.Value),
		},
		Loudness: Rated{
			Value:       round(r.Loudness.Value, 1),
			Quality:     LoudnessBand(r.Loudness.Value),
			Description: fmt.Sprintf("%.1f LUFS integrated: %s", r.Loudness.Value, LoudnessBand(r.Loudness.Value)),
		},
		Dynamics: Dynamics{
			Rated: Rated{
				Value:       round(r.DynamicRange.Value, 1),
				Quality:     dynamicsQuality,
				Description: fmt.Sprintf("%s dynamic range (%.1f LU)", dynamicsQuality, r.DynamicRange.Value),
			},
			ImprovementNeeded: r.DynamicsScore <= 0.4,
		},
		MixBalance: Rated{
			Value:       round(r.SpectralBalance.Value, 2),
			Quality:     BalanceBand(r.SpectralBalance.Value),
			Description: BalanceBand(r.SpectralBalance.Value),
		},
		Harmonic: Harmonic{
			Key:         r.Key.Label(),
			Description: "Key could not be determined",
		},
		Complexity: Scored{
			Value:       round(r.Complexity.Value, 2),
			Description: ComplexityBand(r.Complexity.Value),
		},
		Mood: r.Mood.Value,
		BeatStrength: BeatStrength{
			Value: round(r.BeatStrength, 2),
			Band:  r.BeatStrengthBand,
		},
		Provenance: r.Provenance(),
	}

	if r.Key.Known() {
		s.Harmonic.Description = "Key of " + r.Key.Label()
	}
	return s
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
