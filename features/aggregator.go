package features

import (
	"math"

	"github.com/RyanBlaney/sonido-critique/algorithms/common"
	"github.com/RyanBlaney/sonido-critique/analyzers"
	"github.com/RyanBlaney/sonido-critique/metadata"
)

// Aggregate merges analyzer results and metadata into a complete record. Each dimension takes
// the best analyzer value, then the declared metadata value, then the default.
// It never fails and never leaves a dimension empty.
func Aggregate(meta metadata.Record, results []analyzers.Result) Record {
	r := DefaultRecord(meta.Title)
	r.Artist = meta.Artist
	r.Genre = meta.Genre

	rhythm := best(results, func(res analyzers.Result) bool {
		return res.Rhythm != nil && finite(res.Rhythm.Tempo) && res.Rhythm.Tempo > 0
	})
	harmonic := best(results, func(res analyzers.Result) bool {
		return res.Harmonic != nil && res.Harmonic.Key != ""
	})
	loudness := best(results, func(res analyzers.Result) bool {
		return res.Loudness != nil && finite(res.Loudness.IntegratedLUFS) && finite(res.Loudness.LoudnessRange)
	})
	spectral := best(results, func(res analyzers.Result) bool {
		return res.Spectral != nil && finite(res.Spectral.Contrast) && finite(res.Spectral.Flatness)
	})

	switch {
	case rhythm != nil:
		f := rhythm.Rhythm
		r.Tempo = Measure{Value: f.Tempo, Source: rhythm.Analyzer}
		r.TempoConfidence = f.Confidence
		r.BeatStrength = f.BeatStrength
		r.BeatStrengthBand = analyzers.BeatStrengthBand(f.BeatStrength)
		r.BeatCount = f.BeatCount
	case meta.DeclaredBPM != nil && finite(*meta.DeclaredBPM) && *meta.DeclaredBPM > 0:
		r.Tempo = Measure{Value: *meta.DeclaredBPM, Source: SourceMetadata}
	}

	switch {
	case harmonic != nil:
		f := harmonic.Harmonic
		r.Key = KeyMeasure{Key: f.Key, Scale: f.Scale, Source: harmonic.Analyzer}
		r.KeyConfidence = f.Confidence
		r.KeyClarity = f.Clarity
	case meta.DeclaredKey != "":
		r.Key = KeyMeasure{Key: meta.DeclaredKey, Scale: meta.DeclaredScale, Source: SourceMetadata}
	}

	var complexityParts []float64

	switch {
	case loudness != nil:
		f := loudness.Loudness
		r.Loudness = Measure{Value: f.IntegratedLUFS, Source: loudness.Analyzer}
		r.DynamicRange = Measure{Value: math.Max(0, f.LoudnessRange), Source: loudness.Analyzer}
		r.Energy = Measure{Value: common.Clamp01(f.Energy), Source: loudness.Analyzer}
		r.DynamicsScore = DynamicsScore(r.DynamicRange.Value)
		r.CrestFactor = f.CrestFactor
		r.DynamicComplexity = f.DynamicComplexity
		r.TruePeak = f.TruePeak
		complexityParts = append(complexityParts, r.DynamicsScore)
	case meta.DeclaredLoudness != nil && finite(*meta.DeclaredLoudness):
		r.Loudness = Measure{Value: *meta.DeclaredLoudness, Source: SourceMetadata}
	}

	if spectral != nil {
		f := spectral.Spectral
		r.SpectralBalance = Measure{Value: common.Clamp01(f.Contrast), Source: spectral.Analyzer}
		r.Centroid = f.Centroid
		r.Flatness = f.Flatness
		complexityParts = append(complexityParts, r.SpectralBalance.Value, 1-common.Clamp01(f.Flatness))
	}

	if len(complexityParts) > 0 {
		r.Complexity = Measure{Value: common.Clamp01(common.Mean(complexityParts)), Source: SourceDerived}
	}

	r.Mood = Label{Value: Mood(r.Tempo.Value, r.DynamicsScore, r.SpectralBalance.Value), Source: SourceDerived}
	return r
}

// best returns the highest-fidelity result accepted by ok, the earliest on ties
func best(results []analyzers.Result, ok func(analyzers.Result) bool) *analyzers.Result {
	var chosen *analyzers.Result
	for i := range results {
		if !ok(results[i]) {
			continue
		}
		if chosen == nil || results[i].Fidelity.Rank() > chosen.Fidelity.Rank() {
			chosen = &results[i]
		}
	}
	return chosen
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
