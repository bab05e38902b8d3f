package harvest

import (
	"context"
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// SpotifyConfig holds client-credential settings. TokenURL and BaseURL default to
// Spotify's own endpoints.
type SpotifyConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURL     string `json:"token_url"`
	BaseURL      string `json:"base_url"`
	Market       string `json:"market"`
}

// SpotifySource resolves an artist's top tracks into titles and ISRCs
type SpotifySource struct {
	client *spotify.Client
	market string
	logger logging.Logger
}

// NewSpotifySource returns nil when no credentials are configured
func NewSpotifySource(ctx context.Context, cfg SpotifyConfig) *SpotifySource {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}

	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &SpotifySource{
		client: spotify.New(creds.Client(ctx), opts...),
		market: market,
		logger: logging.WithFields(logging.Fields{
			"component": "spotify_source",
		}),
	}
}

// TopTracks searches for the artist and returns up to limit of their top tracks
func (s *SpotifySource) TopTracks(ctx context.Context, artist string, limit int) ([]TrackRef, error) {
	results, err := s.client.Search(ctx, artist, spotify.SearchTypeArtist)
	if err != nil {
		return nil, fmt.Errorf("spotify: search %q: %w", artist, err)
	}
	if results.Artists == nil || len(results.Artists.Artists) == 0 {
		return nil, fmt.Errorf("spotify: artist %q: %w", artist, ErrNotFound)
	}
	found := results.Artists.Artists[0]

	tracks, err := s.client.GetArtistsTopTracks(ctx, found.ID, s.market)
	if err != nil {
		return nil, fmt.Errorf("spotify: top tracks for %q: %w", found.Name, err)
	}

	refs := make([]TrackRef, 0, len(tracks))
	for _, t := range tracks {
		isrc := t.ExternalIDs["isrc"]
		if isrc == "" {
			continue
		}
		refs = append(refs, TrackRef{Title: t.Name, ISRC: isrc})
		if limit > 0 && len(refs) == limit {
			break
		}
	}

	s.logger.Debug("Resolved top tracks", logging.Fields{
		"artist":    found.Name,
		"spotify":   found.ID,
		"track_ids": len(refs),
	})
	return refs, nil
}
