package describe

import (
	"fmt"
	"slices"
	"strings"
)

// Rated is a value with its band and a sentence describing it
type Rated struct {
	Value       float64 `json:"value"`
	Description string  `json:"description"`
	Quality     string  `json:"quality"`
}

// Dynamics adds the improvement flag to the dynamic range rating
type Dynamics struct {
	Rated
	ImprovementNeeded bool `json:"improvementNeeded"`
}

type Harmonic struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

type Scored struct {
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

type BeatStrength struct {
	Value float64 `json:"value"`
	Band  string  `json:"band"`
}

// Summary is the qualitative description of a track
type Summary struct {
	Title        string            `json:"title"`
	Artist       string            `json:"artist"`
	Genre        string            `json:"genre"`
	Tempo        Rated             `json:"tempo"`
	Loudness     Rated             `json:"loudness"`
	Dynamics     Dynamics          `json:"dynamics"`
	MixBalance   Rated             `json:"mixBalance"`
	Harmonic     Harmonic          `json:"harmonic"`
	Complexity   Scored            `json:"complexity"`
	Mood         string            `json:"mood"`
	BeatStrength BeatStrength      `json:"beatStrength"`
	Provenance   map[string]string `json:"provenance"`
}

// PromptLines renders the summary as bullet lines for the feedback prompt
func (s Summary) PromptLines() []string {
	lines := []string{
		fmt.Sprintf("- Tempo: %.0f BPM (%s)", s.Tempo.Value, s.Tempo.Quality),
		fmt.Sprintf("- Loudness: %.1f LUFS (%s)", s.Loudness.Value, s.Loudness.Quality),
		fmt.Sprintf("- Dynamic range: %.1f LU (%s)", s.Dynamics.Value, s.Dynamics.Quality),
		fmt.Sprintf("- Mix balance: %.2f (%s)", s.MixBalance.Value, s.MixBalance.Quality),
		fmt.Sprintf("- Harmony: %s", s.Harmonic.Description),
		fmt.Sprintf("- Complexity: %.2f (%s)", s.Complexity.Value, s.Complexity.Description),
		fmt.Sprintf("- Beat strength: %s", s.BeatStrength.Band),
		fmt.Sprintf("- Mood: %s", s.Mood),
	}
	if s.Genre != "" {
		lines = slices.Insert(lines, 0, "- Genre: "+s.Genre)
	}
	if s.Dynamics.ImprovementNeeded {
		lines = append(lines, "- Dynamics need attention")
	}
	return lines
}

// PromptText joins PromptLines
func (s Summary) PromptText() string {
	return strings.Join(s.PromptLines(), "\n")
}
