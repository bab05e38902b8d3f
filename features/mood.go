package features

import "github.com/RyanBlaney/sonido-critique/algorithms/common"

type energyTier int

const (
	energyLow energyTier = iota
	energyMedium
	energyHigh
)

var moodTable = map[energyTier][2]string{
	// complex, simple
	energyHigh:   {"Energetic and sophisticated", "Energetic and direct"},
	energyMedium: {"Balanced and nuanced", "Groovy and accessible"},
	energyLow:    {"Reflective and intricate", "Calm and minimal"},
}

// Mood labels a track from its tempo tier and whether dynamics and balance together read as complex
func Mood(tempo, dynamicsScore, spectralBalance float64) string {
	tier := energyLow
	switch {
	case tempo > 125:
		tier = energyHigh
	case tempo > 100:
		tier = energyMedium
	}

	labels := moodTable[tier]
	if (dynamicsScore+spectralBalance)/2 > 0.6 {
		return labels[0]
	}
	return labels[1]
}

// DynamicsScore normalizes a loudness range onto [0, 1]
func DynamicsScore(loudnessRange float64) float64 {
	return common.Clamp01(loudnessRange / DynamicRangeFullScale)
}
