package describe

import (
	"testing"

	"github.com/RyanBlaney/sonido-critique/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsoniter "github.com/json-iterator/go"
)

func TestTempoBandEdges(t *testing.T) {
	tests := []struct {
		bpm  float64
		want string
	}{
		{40, "Very slow"},
		{69.999, "Very slow"},
		{70, "Slow"},
		{89.9, "Slow"},
		{90, "Moderate"},
		{120, "Upbeat"},
		{139.99, "Upbeat"},
		{140, "Fast"},
		{160, "Very fast"},
		{200, "Very fast"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TempoBand(tt.bpm), "bpm %v", tt.bpm)
	}
}

func TestThresholdBands(t *testing.T) {
	assert.Equal(t, "Very loud - possibly over-compressed", LoudnessBand(-8))
	assert.Equal(t, "Loud - competitive streaming level", LoudnessBand(-10))
	assert.Equal(t, "Moderate - balanced for streaming", LoudnessBand(-14))
	assert.Equal(t, "Quiet - could benefit from mastering", LoudnessBand(-18))

	assert.Equal(t, "Excellent", DynamicsBand(0.81))
	assert.Equal(t, "Good", DynamicsBand(0.8))
	assert.Equal(t, "Moderate", DynamicsBand(0.5))
	assert.Equal(t, "Limited", DynamicsBand(0.4))

	assert.Equal(t, "Excellent separation", BalanceBand(0.82))
	assert.Equal(t, "Good balance", BalanceBand(0.7))
	assert.Equal(t, "Fair balance", BalanceBand(0.6))
	assert.Equal(t, "Muddy - frequency masking issues", BalanceBand(0.1))

	assert.Equal(t, "Highly complex arrangement", ComplexityBand(0.9))
	assert.Equal(t, "Moderately complex", ComplexityBand(0.5))
	assert.Equal(t, "Simple and focused", ComplexityBand(0.4))
}

func TestDescribeIsDeterministic(t *testing.T) {
	r := features.DefaultRecord("demo")
	r.Tempo.Value = 132
	r.Key = features.KeyMeasure{Key: "C", Scale: "major", Source: "chroma-key"}

	first := Describe(r)
	for range 5 {
		assert.Equal(t, first, Describe(r))
	}

	assert.Equal(t, "Upbeat", first.Tempo.Quality)
	assert.Equal(t, "Key of C major", first.Harmonic.Description)
	assert.Equal(t, "C major", first.Harmonic.Key)
	assert.False(t, first.Dynamics.ImprovementNeeded)
}

func TestDescribeDefaults(t *testing.T) {
	s := Describe(features.DefaultRecord("demo"))

	assert.Equal(t, "Key could not be determined", s.Harmonic.Description)
	assert.Equal(t, "Unknown", s.Harmonic.Key)
	assert.Equal(t, "Groovy and accessible", s.Mood)
	assert.Equal(t, "Moderate", s.Dynamics.Quality)
	assert.Equal(t, "default", s.Provenance["tempo"])
	assert.NotEmpty(t, s.PromptLines())
}

func TestSummaryJSONFieldNames(t *testing.T) {
	data, err := jsoniter.Marshal(Describe(features.DefaultRecord("demo")))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, jsoniter.Unmarshal(data, &fields))
	for _, key := range []string{"title", "artist", "genre", "tempo", "loudness", "dynamics", "mixBalance", "harmonic", "complexity", "mood", "beatStrength", "provenance"} {
		assert.Contains(t, fields, key)
	}

	dynamics := fields["dynamics"].(map[string]any)
	assert.Contains(t, dynamics, "improvementNeeded")
	assert.Contains(t, dynamics, "quality")
}
