// Package harvest builds reference profiles from public music APIs: Deezer for tempo and
// gain, TheAudioDB for key and mode, AcousticBrainz for danceability and mood, and
// optionally Spotify to find an artist's top tracks.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/RyanBlaney/sonido-critique/algorithms/common"
	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/reference"
	"github.com/arunsworld/nursery"
)

// ErrNotFound is returned when a source has nothing for the request
var ErrNotFound = errors.New("not found")

const (
	keyHistogramSize = 5
	profileMoodCount = 3
)

// TrackSource lists an artist's representative recordings
type TrackSource interface {
	TopTracks(ctx context.Context, artist string, limit int) ([]TrackRef, error)
}

// Options wires a Harvester; every source is optional
type Options struct {
	Deezer         *DeezerClient
	AudioDB        *AudioDBClient
	AcousticBrainz *AcousticBrainzClient
	Tracks         TrackSource

	// Progress is called once per collected track, possibly concurrently
	Progress func(artist string, track TrackRef)
}

// Harvester collects per-track data and aggregates it into a reference profile
type Harvester struct {
	deezer   *DeezerClient
	audioDB  *AudioDBClient
	acoustic *AcousticBrainzClient
	tracks   TrackSource
	progress func(string, TrackRef)
	now      func() time.Time
	logger   logging.Logger
}

// New creates a harvester from explicit sources
func New(opts Options) *Harvester {
	return &Harvester{
		deezer:   opts.Deezer,
		audioDB:  opts.AudioDB,
		acoustic: opts.AcousticBrainz,
		tracks:   opts.Tracks,
		progress: opts.Progress,
		now:      time.Now,
		logger: logging.WithFields(logging.Fields{
			"component": "harvester",
		}),
	}
}

// NewFromConfig builds every client from the reference configuration
func NewFromConfig(ctx context.Context, cfg config.ReferenceConfig, progress func(string, TrackRef)) *Harvester {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	cache := NewCache(cfg.CacheDir)
	retry := RetryConfig{MaxRetries: cfg.MaxRetries, BaseBackoff: cfg.RetryBackoff}

	opts := Options{
		Deezer:         NewDeezerClient(cfg.DeezerBaseURL, httpClient, cache, retry),
		AudioDB:        NewAudioDBClient(cfg.AudioDBBaseURL, cfg.AudioDBAPIKey, httpClient, cache, retry),
		AcousticBrainz: NewAcousticBrainzClient(cfg.AcousticBrainzBaseURL, httpClient, cache, retry),
		Progress:       progress,
	}
	// a nil *SpotifySource must not become a non-nil interface
	if src := NewSpotifySource(ctx, SpotifyConfig{ClientID: cfg.SpotifyClientID, ClientSecret: cfg.SpotifyClientSecret}); src != nil {
		opts.Tracks = src
	}
	return New(opts)
}

// Harvest builds a profile for artist from at most limit tracks
func (h *Harvester) Harvest(ctx context.Context, artist string, limit int) (reference.Profile, error) {
	logger := h.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Harvest",
		"artist":   artist,
	})

	refs, err := h.trackList(ctx, artist, limit)
	if err != nil {
		return reference.Profile{}, err
	}

	collected := make([]TrackFeatures, len(refs))
	jobs := make([]nursery.ConcurrentJob, 0, len(refs))
	for i, ref := range refs {
		jobs = append(jobs, func(jobCtx context.Context, _ chan error) {
			collected[i] = h.collect(jobCtx, artist, ref)
			if h.progress != nil {
				h.progress(artist, ref)
			}
		})
	}
	if err := nursery.RunConcurrentlyWithContext(ctx, jobs...); err != nil {
		return reference.Profile{}, fmt.Errorf("harvest %q: %w", artist, err)
	}
	if err := ctx.Err(); err != nil {
		return reference.Profile{}, fmt.Errorf("harvest %q: %w", artist, err)
	}

	var kept []TrackFeatures
	for _, t := range collected {
		if t.HasData() {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return reference.Profile{}, fmt.Errorf("harvest %q: no track data: %w", artist, ErrNotFound)
	}

	profile := Aggregate(artist, kept)
	profile.UpdatedAt = h.now().UTC()

	logger.Info("Harvested reference profile", logging.Fields{
		"tracks_requested": len(refs),
		"tracks_kept":      len(kept),
	})
	return profile, nil
}

func (h *Harvester) trackList(ctx context.Context, artist string, limit int) ([]TrackRef, error) {
	refs, ok := DemoTracks(artist)
	if !ok {
		if h.tracks == nil {
			return nil, fmt.Errorf("harvest %q: no track source: %w", artist, ErrNotFound)
		}
		var err error
		if refs, err = h.tracks.TopTracks(ctx, artist, limit); err != nil {
			return nil, err
		}
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("harvest %q: %w", artist, ErrNotFound)
	}
	return refs, nil
}

// collect queries every configured source for one track; failures leave fields empty
func (h *Harvester) collect(ctx context.Context, artist string, ref TrackRef) TrackFeatures {
	t := TrackFeatures{TrackRef: ref}

	if h.deezer != nil && ref.ISRC != "" {
		if f, err := h.deezer.TrackByISRC(ctx, ref.ISRC); err == nil {
			t.BPM, t.Gain = f.BPM, f.Gain
		} else {
			h.sourceFailed("deezer", ref, err)
		}
	}

	if h.audioDB != nil && h.audioDB.Enabled() {
		if f, err := h.audioDB.SearchTrack(ctx, artist, ref.Title); err == nil {
			t.Key, t.Mode, t.Tempo = f.Key, f.Mode, f.Tempo
		} else {
			h.sourceFailed("audiodb", ref, err)
		}
	}

	if h.acoustic != nil && ref.MBID != "" {
		if hl, err := h.acoustic.HighLevel(ctx, ref.MBID); err == nil {
			m := ExtractMoods(hl)
			t.Danceability, t.Moods = m.Danceability, m.Moods
		} else {
			h.sourceFailed("acousticbrainz", ref, err)
		}
	}

	return t
}

func (h *Harvester) sourceFailed(source string, ref TrackRef, err error) {
	fields := logging.Fields{"source": source, "title": ref.Title, "error": err.Error()}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDisabled) {
		h.logger.Debug("Source has no data for track", fields)
		return
	}
	h.logger.Warn("Source request failed", fields)
}

// Aggregate folds per-track data into a profile: median tempo and gain, a top-five key
// histogram, mean danceability and the three most frequent moods. Ties keep first-seen order.
func Aggregate(artist string, tracks []TrackFeatures) reference.Profile {
	p := reference.Profile{
		Artist:     artist,
		Slug:       reference.Slug(artist),
		Source:     reference.SourceHarvest,
		TrackCount: len(tracks),
	}

	var bpms, gains, dance []float64
	var keys, moods []string
	for _, t := range tracks {
		switch {
		case t.BPM != nil:
			bpms = append(bpms, *t.BPM)
		case t.Tempo != nil:
			bpms = append(bpms, *t.Tempo)
		}
		if t.Gain != nil {
			gains = append(gains, *t.Gain)
		}
		if t.Danceability != nil {
			dance = append(dance, *t.Danceability)
		}
		switch {
		case t.Key != "" && t.Mode != "":
			keys = append(keys, t.Key+" "+t.Mode)
		case t.Key != "":
			keys = append(keys, t.Key)
		}
		moods = append(moods, t.Moods...)
	}

	if len(bpms) > 0 {
		p.MedianTempo = reference.Float(common.Median(bpms))
	}
	if len(gains) > 0 {
		p.MedianLoudness = reference.Float(common.Median(gains))
	}
	if len(dance) > 0 {
		p.MeanDanceability = reference.Float(common.Mean(dance))
	}
	for _, c := range mostCommon(keys, keyHistogramSize) {
		p.KeyHistogram = append(p.KeyHistogram, reference.KeyCount{Key: c.value, Count: c.count})
	}
	for _, c := range mostCommon(moods, profileMoodCount) {
		p.TopMoods = append(p.TopMoods, c.value)
	}
	return p
}

type counted struct {
	value string
	count int
}

// mostCommon counts values and returns the n most frequent, ties in first-seen order
func mostCommon(values []string, n int) []counted {
	index := map[string]int{}
	var counts []counted
	for _, v := range values {
		if i, ok := index[v]; ok {
			counts[i].count++
			continue
		}
		index[v] = len(counts)
		counts = append(counts, counted{v, 1})
	}

	sort.SliceStable(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
	return counts[:min(n, len(counts))]
}
