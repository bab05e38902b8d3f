package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
)

const (
	acousticBrainzTimeout     = 5 * time.Second
	acousticBrainzCacheBucket = "acousticbrainz"
	topMoodCount              = 3
)

// moodClassifiers are the binary mood models read from the high-level data, in
// tie-breaking order
var moodClassifiers = []string{
	"mood_electronic", "mood_happy", "mood_acoustic",
	"mood_aggressive", "mood_party", "mood_relaxed", "mood_sad",
}

// Classifier is one high-level model output
type Classifier struct {
	Value       string             `json:"value"`
	Probability float64            `json:"probability"`
	All         map[string]float64 `json:"all"`
}

// HighLevel maps classifier names (danceability, mood_happy, ...) to their outputs
type HighLevel map[string]Classifier

// MoodFeatures are the harvested mood descriptors of one recording
type MoodFeatures struct {
	Danceability *float64 `json:"danceability,omitempty"`
	Moods        []string `json:"moods,omitempty"`
}

// AcousticBrainzClient reads high-level descriptors by MusicBrainz recording id
type AcousticBrainzClient struct {
	baseURL string
	fetcher *fetcher
	cache   *Cache
	logger  logging.Logger
}

// NewAcousticBrainzClient creates a client whose requests time out after five seconds
func NewAcousticBrainzClient(baseURL string, httpClient *http.Client, cache *Cache, retry RetryConfig) *AcousticBrainzClient {
	return &AcousticBrainzClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: newFetcher("acousticbrainz", httpClient, nil, retry),
		cache:   cache,
		logger: logging.WithFields(logging.Fields{
			"component": "acousticbrainz_client",
		}),
	}
}

// HighLevel fetches the high-level data of a recording, or ErrNotFound
func (c *AcousticBrainzClient) HighLevel(ctx context.Context, mbid string) (HighLevel, error) {
	var hl HighLevel
	if c.cache.Load(acousticBrainzCacheBucket, mbid, 0, &hl) && len(hl) > 0 {
		return hl, nil
	}

	ctx, cancel := context.WithTimeout(ctx, acousticBrainzTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/high-level?recording_ids=%s", c.baseURL, url.QueryEscape(mbid))
	var resp map[string]struct {
		HighLevel HighLevel `json:"highlevel"`
	}
	if err := c.fetcher.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	entry, ok := resp[mbid]
	if !ok || len(entry.HighLevel) == 0 {
		return nil, fmt.Errorf("acousticbrainz: %s: %w", mbid, ErrNotFound)
	}
	if err := c.cache.Save(acousticBrainzCacheBucket, mbid, entry.HighLevel); err != nil {
		c.logger.Warn("Failed to cache AcousticBrainz data", logging.Fields{"mbid": mbid, "error": err.Error()})
	}
	return entry.HighLevel, nil
}

// ExtractMoods reads danceability and the top positive moods. A mood counts when its
// most probable class is not a "not_" class; moods are ranked by that probability.
func ExtractMoods(hl HighLevel) MoodFeatures {
	var f MoodFeatures

	if dance, ok := hl["danceability"]; ok {
		if v, ok := dance.All["danceable"]; ok {
			f.Danceability = &v
		}
	}

	type scored struct {
		name string
		prob float64
	}
	var moods []scored
	for _, name := range moodClassifiers {
		c, ok := hl[name]
		if !ok || len(c.All) == 0 {
			continue
		}
		class, prob := argmax(c.All)
		if !strings.HasPrefix(class, "not_") {
			moods = append(moods, scored{strings.TrimPrefix(name, "mood_"), prob})
		}
	}

	sort.SliceStable(moods, func(i, j int) bool { return moods[i].prob > moods[j].prob })
	for i := range min(len(moods), topMoodCount) {
		f.Moods = append(f.Moods, moods[i].name)
	}
	return f
}

// argmax picks the most probable class; equal probabilities resolve alphabetically
func argmax(all map[string]float64) (string, float64) {
	classes := make([]string, 0, len(all))
	for k := range all {
		classes = append(classes, k)
	}
	sort.Strings(classes)

	best := classes[0]
	for _, k := range classes[1:] {
		if all[k] > all[best] {
			best = k
		}
	}
	return best, all[best]
}
