// Package features merges analyzer results and declared metadata into a complete FeatureRecord.
package features

// Provenance values other than analyzer names
const (
	SourceMetadata = "metadata"
	SourceDerived  = "derived"
	SourceDefault  = "default"
)

// Defaults used when neither an analyzer nor metadata supplied a dimension
const (
	DefaultTempo           = 120.0
	DefaultKey             = "Unknown"
	DefaultLoudness        = -14.0
	DefaultDynamicRange    = 6.0 // LU, a dynamics score of 0.5
	DefaultSpectralBalance = 0.5
	DefaultEnergy          = 0.5
	DefaultComplexity      = 0.5
	UnknownBeatStrength    = "Unknown"

	// DynamicRangeFullScale is the loudness range (LU) that scores 1.0
	DynamicRangeFullScale = 12.0
)

// Measure is a numeric dimension with its provenance
type Measure struct {
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// KeyMeasure is the key dimension. Scale is empty when the key is unknown.
type KeyMeasure struct {
	Key    string `json:"key"`
	Scale  string `json:"scale"`
	Source string `json:"source"`
}

// Known reports whether a key was determined
func (k KeyMeasure) Known() bool {
	return k.Key != "" && k.Key != DefaultKey
}

// Label renders "C major", or "Unknown"
func (k KeyMeasure) Label() string {
	if !k.Known() {
		return DefaultKey
	}
	if k.Scale == "" {
		return k.Key
	}
	return k.Key + " " + k.Scale
}

// Label is a categorical dimension with its provenance
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Record is the complete feature set of one track. Every dimension is always populated.
type Record struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Genre  string `json:"genre"`

	Tempo           Measure    `json:"tempo"`
	Key             KeyMeasure `json:"key"`
	Loudness        Measure    `json:"loudness"`      // LUFS
	DynamicRange    Measure    `json:"dynamic_range"` // LU
	SpectralBalance Measure    `json:"spectral_balance"`
	Energy          Measure    `json:"energy"`
	Complexity      Measure    `json:"complexity"`
	Mood            Label      `json:"mood"`

	DynamicsScore     float64  `json:"dynamics_score"`
	BeatStrength      float64  `json:"beat_strength"`
	BeatStrengthBand  string   `json:"beat_strength_band"`
	BeatCount         int      `json:"beat_count"`
	TempoConfidence   float64  `json:"tempo_confidence"`
	KeyConfidence     float64  `json:"key_confidence"`
	KeyClarity        float64  `json:"key_clarity"`
	Centroid          float64  `json:"centroid"`
	Flatness          float64  `json:"flatness"`
	CrestFactor       float64  `json:"crest_factor"`
	DynamicComplexity float64  `json:"dynamic_complexity"`
	TruePeak          *float64 `json:"true_peak,omitempty"`
}

// Provenance maps each dimension to where its value came from
func (r Record) Provenance() map[string]string {
	return map[string]string{
		"tempo":            r.Tempo.Source,
		"key":              r.Key.Source,
		"loudness":         r.Loudness.Source,
		"dynamic_range":    r.DynamicRange.Source,
		"spectral_balance": r.SpectralBalance.Source,
		"energy":           r.Energy.Source,
		"complexity":       r.Complexity.Source,
		"mood":             r.Mood.Source,
	}
}

// DefaultRecord is the record of a track nothing could be measured or read from
func DefaultRecord(title string) Record {
	r := Record{
		Title:            title,
		Tempo:            Measure{Value: DefaultTempo, Source: SourceDefault},
		Key:              KeyMeasure{Key: DefaultKey, Source: SourceDefault},
		Loudness:         Measure{Value: DefaultLoudness, Source: SourceDefault},
		DynamicRange:     Measure{Value: DefaultDynamicRange, Source: SourceDefault},
		SpectralBalance:  Measure{Value: DefaultSpectralBalance, Source: SourceDefault},
		Energy:           Measure{Value: DefaultEnergy, Source: SourceDefault},
		Complexity:       Measure{Value: DefaultComplexity, Source: SourceDefault},
		DynamicsScore:    DynamicsScore(DefaultDynamicRange),
		BeatStrengthBand: UnknownBeatStrength,
	}
	r.Mood = Label{Value: Mood(r.Tempo.Value, r.DynamicsScore, r.SpectralBalance.Value), Source: SourceDerived}
	return r
}
