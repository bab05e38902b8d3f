// Package reference resolves artist names into reference profiles: aggregates of an
// artist's typical tempo, loudness, key and mood used by the comparator.
package reference

import (
	"errors"
	"time"

	"github.com/gosimple/slug"
)

// ErrProfileNotFound is returned when no profile exists for an artist
var ErrProfileNotFound = errors.New("reference profile not found")

// Source tells where a profile came from
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceHarvest Source = "harvest"
	SourceDefault Source = "default"
)

// DefaultSlug keys the fallback profile
const DefaultSlug = "default"

// KeyCount is one entry of a key histogram, e.g. {"C Minor", 2}
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Profile aggregates an artist's tracks. Optional dimensions are nil when unknown.
type Profile struct {
	Artist           string     `json:"artist"`
	Slug             string     `json:"slug"`
	Source           Source     `json:"source"`
	TrackCount       int        `json:"track_count"`
	MedianTempo      *float64   `json:"median_tempo,omitempty"`
	MedianLoudness   *float64   `json:"median_loudness,omitempty"`
	KeyHistogram     []KeyCount `json:"key_histogram,omitempty"`
	MeanDanceability *float64   `json:"mean_danceability,omitempty"`
	TopMoods         []string   `json:"top_moods,omitempty"`
	Dynamics         *float64   `json:"dynamics,omitempty"`         // loudness range in LU
	SpectralBalance  *float64   `json:"spectral_balance,omitempty"` // 0-1
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Slug normalizes an artist name into the key used by the catalog, the store and caches
func Slug(artist string) string {
	return slug.Make(artist)
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// DefaultProfile is the neutral profile used for names nothing else recognizes
func DefaultProfile(artist string) Profile {
	return Profile{
		Artist:          artist,
		Slug:            DefaultSlug,
		Source:          SourceDefault,
		MedianTempo:     Float(120),
		MedianLoudness:  Float(-14),
		Dynamics:        Float(6),
		SpectralBalance: Float(0.5),
	}
}
