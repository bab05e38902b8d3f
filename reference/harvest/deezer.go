package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
)

const (
	deezerCacheTTL    = 24 * time.Hour
	deezerRateLimit   = 50
	deezerRateWindow  = time.Minute
	deezerCacheBucket = "deezer"
)

// DeezerTrack is the part of Deezer's track payload the harvester reads
type DeezerTrack struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	BPM   float64 `json:"bpm"`
	Gain  float64 `json:"gain"`
}

// DeezerFeatures holds tempo and replay gain; zero values from Deezer are treated as unknown
type DeezerFeatures struct {
	BPM  *float64 `json:"bpm,omitempty"`
	Gain *float64 `json:"gain,omitempty"`
}

// DeezerClient looks tracks up by ISRC
type DeezerClient struct {
	baseURL string
	fetcher *fetcher
	cache   *Cache
	logger  logging.Logger
}

// NewDeezerClient creates a client limited to 50 requests per minute
func NewDeezerClient(baseURL string, httpClient *http.Client, cache *Cache, retry RetryConfig) *DeezerClient {
	return &DeezerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: newFetcher("deezer", httpClient, NewRateLimiter(deezerRateLimit, deezerRateWindow), retry),
		cache:   cache,
		logger: logging.WithFields(logging.Fields{
			"component": "deezer_client",
		}),
	}
}

// TrackByISRC returns BPM and gain for the recording, or ErrNotFound
func (c *DeezerClient) TrackByISRC(ctx context.Context, isrc string) (DeezerFeatures, error) {
	var track DeezerTrack
	if !c.cache.Load(deezerCacheBucket, isrc, deezerCacheTTL, &track) {
		endpoint := fmt.Sprintf("%s/track/isrc:%s?output=json", c.baseURL, url.PathEscape(isrc))
		if err := c.fetcher.getJSON(ctx, endpoint, &track); err != nil {
			return DeezerFeatures{}, err
		}
		// deezer answers unknown ISRCs with 200 and an error object
		if track.ID == 0 {
			return DeezerFeatures{}, fmt.Errorf("deezer: isrc %s: %w", isrc, ErrNotFound)
		}
		if err := c.cache.Save(deezerCacheBucket, isrc, track); err != nil {
			c.logger.Warn("Failed to cache Deezer track", logging.Fields{"isrc": isrc, "error": err.Error()})
		}
	}

	var features DeezerFeatures
	if track.BPM != 0 {
		features.BPM = &track.BPM
	}
	if track.Gain != 0 {
		features.Gain = &track.Gain
	}
	return features, nil
}
