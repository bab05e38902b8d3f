// Package compare measures how far a track's features sit from a set of reference
// artists and scores their overall similarity.
package compare

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-critique/algorithms/common"
	"github.com/RyanBlaney/sonido-critique/features"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/reference"
)

// NeutralScore is reported when nothing can be compared
const NeutralScore = 50.0

// Dimension names a compared feature
type Dimension string

const (
	DimensionTempo    Dimension = "tempo"
	DimensionLoudness Dimension = "loudness"
	DimensionDynamics Dimension = "dynamics"
	DimensionBalance  Dimension = "balance"
)

// Dimensions lists every compared feature in report order
func Dimensions() []Dimension {
	return []Dimension{DimensionTempo, DimensionLoudness, DimensionDynamics, DimensionBalance}
}

// Config holds the per-dimension tolerances. A relative difference at or beyond the
// tolerance earns no points.
type Config struct {
	Tolerances         map[Dimension]float64 `json:"tolerances"`
	PointsPerDimension float64               `json:"points_per_dimension"`
}

// DefaultConfig returns the standard tolerances
func DefaultConfig() *Config {
	return &Config{
		Tolerances: map[Dimension]float64{
			DimensionTempo:    0.5,
			DimensionLoudness: 0.3,
			DimensionDynamics: 0.5,
			DimensionBalance:  0.5,
		},
		PointsPerDimension: 25,
	}
}

// direction words per dimension: above, below
var directionWords = map[Dimension][2]string{
	DimensionTempo:    {"faster than", "slower than"},
	DimensionLoudness: {"louder than", "quieter than"},
	DimensionDynamics: {"more dynamic than", "less dynamic than"},
	DimensionBalance:  {"more balanced than", "less balanced than"},
}

var units = map[Dimension]string{
	DimensionTempo:    "BPM",
	DimensionLoudness: "LU",
	DimensionDynamics: "LU",
	DimensionBalance:  "",
}

// Delta compares one dimension of the track with the reference average
type Delta struct {
	Value        float64 `json:"value"`
	ReferenceAvg float64 `json:"reference_avg"`
	Delta        float64 `json:"delta"`
	Direction    string  `json:"direction"`
	Description  string  `json:"description"`
	Available    bool    `json:"available"`
}

// Match is the closest reference artist
type Match struct {
	Artist string  `json:"artist"`
	Score  float64 `json:"score"`
}

// Result is a complete comparison, recomputed on every call
type Result struct {
	Tempo           Delta               `json:"tempo"`
	Loudness        Delta               `json:"loudness"`
	Dynamics        Delta               `json:"dynamics"`
	Balance         Delta               `json:"balance"`
	SimilarityScore float64             `json:"similarity_score"`
	ClosestMatch    Match               `json:"closest_match"`
	Profiles        []reference.Profile `json:"profiles"`
}

// Delta returns the entry for d
func (r *Result) Delta(d Dimension) Delta {
	switch d {
	case DimensionTempo:
		return r.Tempo
	case DimensionLoudness:
		return r.Loudness
	case DimensionDynamics:
		return r.Dynamics
	default:
		return r.Balance
	}
}

func (r *Result) setDelta(d Dimension, v Delta) {
	switch d {
	case DimensionTempo:
		r.Tempo = v
	case DimensionLoudness:
		r.Loudness = v
	case DimensionDynamics:
		r.Dynamics = v
	default:
		r.Balance = v
	}
}

// ProfileResolver maps artist names to profiles, in order, without failing
type ProfileResolver interface {
	ResolveAll(ctx context.Context, artists []string) []reference.Profile
}

// Comparator resolves artists and compares records against them
type Comparator struct {
	config   *Config
	resolver ProfileResolver
	logger   logging.Logger
}

// NewComparator creates a comparator. A nil config uses DefaultConfig.
func NewComparator(resolver ProfileResolver, cfg *Config) *Comparator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Comparator{
		config:   cfg,
		resolver: resolver,
		logger: logging.WithFields(logging.Fields{
			"component": "comparator",
		}),
	}
}

// Compare resolves each artist in order and compares the record against them
func (c *Comparator) Compare(ctx context.Context, record features.Record, artists []string) Result {
	result := c.CompareProfiles(record, c.resolver.ResolveAll(ctx, artists))
	c.logger.Debug("Compared against reference artists", logging.Fields{
		"function":         "Compare",
		"artists":          len(artists),
		"similarity_score": result.SimilarityScore,
		"closest_match":    result.ClosestMatch.Artist,
	})
	return result
}

// CompareProfiles compares a record against already resolved profiles using the default tolerances
func CompareProfiles(record features.Record, profiles []reference.Profile) Result {
	return NewComparator(nil, nil).CompareProfiles(record, profiles)
}

// CompareProfiles compares a record against already resolved profiles. It is pure.
func (c *Comparator) CompareProfiles(record features.Record, profiles []reference.Profile) Result {
	result := Result{Profiles: profiles}

	var points float64
	var available int
	for _, d := range Dimensions() {
		value := trackValue(record, d)
		delta := Delta{Value: value, Direction: "matches"}

		refs := profileValues(profiles, d)
		if len(refs) > 0 {
			ref := common.Mean(refs)
			delta.Available = true
			delta.ReferenceAvg = ref
			delta.Delta = value - ref
			delta.Direction = direction(d, delta.Delta)
			delta.Description = describe(d, delta.Delta, delta.Direction)

			points += c.config.PointsPerDimension * c.similarity(d, value, ref)
			available++
		}
		result.setDelta(d, delta)
	}

	result.SimilarityScore = NeutralScore
	if available > 0 {
		result.SimilarityScore = 100 * points / (c.config.PointsPerDimension * float64(available))
	}
	result.ClosestMatch = c.closest(record, profiles)
	return result
}

// similarity is 1 for identical values, falling linearly to 0 at the dimension's tolerance
func (c *Comparator) similarity(d Dimension, track, ref float64) float64 {
	tolerance := c.config.Tolerances[d]
	if tolerance <= 0 {
		if track == ref {
			return 1
		}
		return 0
	}

	diff := math.Abs(track - ref)
	if ref != 0 {
		diff /= math.Abs(ref)
	}
	return 1 - math.Min(diff, tolerance)/tolerance
}

// closest scores each profile on tempo and loudness; ties keep input order
func (c *Comparator) closest(record features.Record, profiles []reference.Profile) Match {
	var best Match
	for i, p := range profiles {
		var sum float64
		var n int
		for _, d := range []Dimension{DimensionTempo, DimensionLoudness} {
			if ref, ok := profileValue(p, d); ok {
				sum += c.similarity(d, trackValue(record, d), ref)
				n++
			}
		}

		score := NeutralScore
		if n > 0 {
			score = 100 * sum / float64(n)
		}
		if i == 0 || score > best.Score {
			best = Match{Artist: p.Artist, Score: score}
		}
	}
	return best
}

func trackValue(r features.Record, d Dimension) float64 {
	switch d {
	case DimensionTempo:
		return r.Tempo.Value
	case DimensionLoudness:
		return r.Loudness.Value
	case DimensionDynamics:
		return r.DynamicRange.Value
	default:
		return r.SpectralBalance.Value
	}
}

func profileValue(p reference.Profile, d Dimension) (float64, bool) {
	var v *float64
	switch d {
	case DimensionTempo:
		v = p.MedianTempo
	case DimensionLoudness:
		v = p.MedianLoudness
	case DimensionDynamics:
		v = p.Dynamics
	default:
		v = p.SpectralBalance
	}
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

func profileValues(profiles []reference.Profile, d Dimension) []float64 {
	var values []float64
	for _, p := range profiles {
		if v, ok := profileValue(p, d); ok {
			values = append(values, v)
		}
	}
	return values
}

func direction(d Dimension, delta float64) string {
	switch {
	case delta > 0:
		return directionWords[d][0]
	case delta < 0:
		return directionWords[d][1]
	default:
		return "matches"
	}
}

func describe(d Dimension, delta float64, dir string) string {
	if delta == 0 {
		return fmt.Sprintf("Your %s matches the reference average", d)
	}
	amount := fmt.Sprintf("%.1f", math.Abs(delta))
	if d == DimensionBalance {
		amount = fmt.Sprintf("%.2f", math.Abs(delta))
	}
	if unit := units[d]; unit != "" {
		amount += " " + unit
	}
	return fmt.Sprintf("Your %s is %s %s the reference average", d, amount, dir)
}
