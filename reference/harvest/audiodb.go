package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
)

const audioDBCacheBucket = "audiodb"

// ErrDisabled is returned by sources that lack credentials
var ErrDisabled = errors.New("source disabled")

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// AudioDBFeatures holds the key, mode and tempo TheAudioDB declares for a track
type AudioDBFeatures struct {
	Key   string   `json:"key,omitempty"`
	Mode  string   `json:"mode,omitempty"`
	Tempo *float64 `json:"tempo,omitempty"`
}

type audioDBResponse struct {
	Track []map[string]any `json:"track"`
}

// AudioDBClient searches TheAudioDB by artist and title
type AudioDBClient struct {
	baseURL string
	apiKey  string
	fetcher *fetcher
	cache   *Cache
	logger  logging.Logger
}

// NewAudioDBClient creates a client limited to one request per second. It is disabled
// when apiKey is empty.
func NewAudioDBClient(baseURL, apiKey string, httpClient *http.Client, cache *Cache, retry RetryConfig) *AudioDBClient {
	return &AudioDBClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: newFetcher("audiodb", httpClient, NewRateLimiter(1, time.Second), retry),
		cache:   cache,
		logger: logging.WithFields(logging.Fields{
			"component": "audiodb_client",
		}),
	}
}

// Enabled reports whether an API key is configured
func (c *AudioDBClient) Enabled() bool {
	return c.apiKey != ""
}

// SearchTrack returns the first matching track's features, or ErrNotFound
func (c *AudioDBClient) SearchTrack(ctx context.Context, artist, title string) (AudioDBFeatures, error) {
	if !c.Enabled() {
		return AudioDBFeatures{}, fmt.Errorf("audiodb: %w", ErrDisabled)
	}

	cacheKey := artist + " " + title
	var track map[string]any
	if !c.cache.Load(audioDBCacheBucket, cacheKey, 0, &track) {
		q := url.Values{}
		q.Set("s", artist)
		q.Set("t", title)
		endpoint := fmt.Sprintf("%s/%s/searchtrack.php?%s", c.baseURL, url.PathEscape(c.apiKey), q.Encode())

		var resp audioDBResponse
		if err := c.fetcher.getJSON(ctx, endpoint, &resp); err != nil {
			return AudioDBFeatures{}, err
		}
		if len(resp.Track) == 0 {
			return AudioDBFeatures{}, fmt.Errorf("audiodb: %s - %s: %w", artist, title, ErrNotFound)
		}
		track = resp.Track[0]
		if err := c.cache.Save(audioDBCacheBucket, cacheKey, track); err != nil {
			c.logger.Warn("Failed to cache AudioDB track", logging.Fields{"artist": artist, "title": title, "error": err.Error()})
		}
	}

	return extractAudioDBFeatures(track), nil
}

func extractAudioDBFeatures(track map[string]any) AudioDBFeatures {
	var f AudioDBFeatures

	if raw := stringField(track, "strKey"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n < len(pitchNames) {
			f.Key = pitchNames[n]
		}
	}
	f.Mode = stringField(track, "strMode")
	if raw := stringField(track, "intBPM"); raw != "" {
		if bpm, err := strconv.ParseFloat(raw, 64); err == nil && bpm > 0 {
			f.Tempo = &bpm
		}
	}
	return f
}

// stringField reads a field TheAudioDB may send as a string, a number or null
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
