package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-critique/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	data, _ := json.Marshal(v)
	w.Write(data)
}

// highLevel builds AcousticBrainz data whose positive moods rank in the given order
func highLevel(danceable float64, moods ...string) HighLevel {
	hl := HighLevel{
		"danceability": {All: map[string]float64{"danceable": danceable, "not_danceable": 1 - danceable}},
	}
	for i, m := range moods {
		p := 0.9 - 0.1*float64(i)
		hl["mood_"+m] = Classifier{All: map[string]float64{m: p, "not_" + m: 1 - p}}
	}
	return hl
}

type tameImpalaAPI struct {
	deezer   map[string]DeezerTrack
	audioDB  map[string]map[string]any
	acoustic map[string]HighLevel
}

func newTameImpalaAPI() *tameImpalaAPI {
	return &tameImpalaAPI{
		deezer: map[string]DeezerTrack{
			"AUUM71500463": {ID: 1, BPM: 117.5, Gain: -10.2},
			"AUUM71500454": {ID: 2, BPM: 125, Gain: -9.8},
			"AUUM71900654": {ID: 3, BPM: 120, Gain: -11.5},
		},
		audioDB: map[string]map[string]any{
			"The Less I Know The Better": {"strKey": "0", "strMode": "Minor", "intBPM": "117"},
			"Let It Happen":              {"strKey": "6", "strMode": "Major", "intBPM": "125"},
			"Borderline":                 {"strKey": "0", "strMode": "Minor", "intBPM": nil},
		},
		acoustic: map[string]HighLevel{
			"9b0a3376-472d-4a99-81f0-b713c5a42bd2": highLevel(0.78, "electronic", "happy", "party"),
			"02e96794-46b4-4a10-b899-533f3c5b114a": highLevel(0.82, "electronic", "party", "aggressive"),
			"0dcd2a7a-7d22-4a0f-9cb1-5db3c944e8a3": highLevel(0.75, "electronic", "relaxed", "acoustic"),
		},
	}
}

func (a *tameImpalaAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/deezer/track/isrc:"):
		isrc := strings.TrimPrefix(r.URL.Path, "/deezer/track/isrc:")
		if t, ok := a.deezer[isrc]; ok {
			writeJSON(w, t)
			return
		}
		writeJSON(w, map[string]any{"error": map[string]any{"type": "DataException", "code": 800}})
	case r.URL.Path == "/audiodb/testkey/searchtrack.php":
		if t, ok := a.audioDB[r.URL.Query().Get("t")]; ok {
			writeJSON(w, map[string]any{"track": []any{t}})
			return
		}
		writeJSON(w, map[string]any{"track": nil})
	case r.URL.Path == "/ab/high-level":
		mbid := r.URL.Query().Get("recording_ids")
		if hl, ok := a.acoustic[mbid]; ok {
			writeJSON(w, map[string]any{mbid: map[string]any{"highlevel": hl}})
			return
		}
		http.NotFound(w, r)
	default:
		http.NotFound(w, r)
	}
}

func harvesterFor(t *testing.T, url, cacheDir string) *Harvester {
	t.Helper()
	cache := NewCache(cacheDir)
	audioDB := NewAudioDBClient(url+"/audiodb", "testkey", nil, cache, fastRetry)
	audioDB.fetcher.limiter = nil
	return New(Options{
		Deezer:         NewDeezerClient(url+"/deezer", nil, cache, fastRetry),
		AudioDB:        audioDB,
		AcousticBrainz: NewAcousticBrainzClient(url+"/ab", nil, cache, fastRetry),
	})
}

func TestHarvestTameImpala(t *testing.T) {
	srv := httptest.NewServer(newTameImpalaAPI())
	defer srv.Close()

	var seen atomic.Int32
	h := harvesterFor(t, srv.URL, "")
	h.progress = func(string, TrackRef) { seen.Add(1) }

	p, err := h.Harvest(context.Background(), "Tame Impala", 10)
	require.NoError(t, err)

	assert.Equal(t, int32(5), seen.Load())
	assert.Equal(t, "tame-impala", p.Slug)
	assert.Equal(t, reference.SourceHarvest, p.Source)
	assert.Equal(t, 3, p.TrackCount)
	require.NotNil(t, p.MedianTempo)
	assert.Equal(t, 120.0, *p.MedianTempo)
	require.NotNil(t, p.MedianLoudness)
	assert.Equal(t, -10.2, *p.MedianLoudness)
	assert.Equal(t, []reference.KeyCount{{Key: "C Minor", Count: 2}, {Key: "F# Major", Count: 1}}, p.KeyHistogram)
	require.NotNil(t, p.MeanDanceability)
	assert.InDelta(t, 0.78333, *p.MeanDanceability, 1e-4)
	assert.Equal(t, []string{"electronic", "party", "happy"}, p.TopMoods)
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestHarvestRespectsLimit(t *testing.T) {
	srv := httptest.NewServer(newTameImpalaAPI())
	defer srv.Close()

	p, err := harvesterFor(t, srv.URL, "").Harvest(context.Background(), "Tame Impala", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TrackCount)
	assert.Equal(t, 121.25, *p.MedianTempo)
}

func TestHarvestUnknownArtist(t *testing.T) {
	srv := httptest.NewServer(newTameImpalaAPI())
	defer srv.Close()

	_, err := harvesterFor(t, srv.URL, "").Harvest(context.Background(), "Nobody We Know", 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHarvestNoDataIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := harvesterFor(t, srv.URL, "").Harvest(context.Background(), "Daft Punk", 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

type staticTracks []TrackRef

func (s staticTracks) TopTracks(context.Context, string, int) ([]TrackRef, error) {
	return s, nil
}

func TestHarvestUsesTrackSourceForOtherArtists(t *testing.T) {
	srv := httptest.NewServer(newTameImpalaAPI())
	defer srv.Close()

	cache := NewCache("")
	h := New(Options{
		Deezer: NewDeezerClient(srv.URL+"/deezer", nil, cache, fastRetry),
		Tracks: staticTracks{{Title: "Let It Happen", ISRC: "AUUM71500454"}},
	})
	p, err := h.Harvest(context.Background(), "Some Cover Band", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TrackCount)
	assert.Equal(t, 125.0, *p.MedianTempo)
	assert.Empty(t, p.TopMoods)
}

func TestAggregate(t *testing.T) {
	f := reference.Float
	tracks := []TrackFeatures{
		{BPM: f(117.5), Gain: f(-10.2), Key: "C", Mode: "Minor", Danceability: f(0.78), Moods: []string{"electronic", "happy", "party"}},
		{BPM: f(125), Gain: f(-9.8), Key: "F#", Mode: "Major", Danceability: f(0.82), Moods: []string{"electronic", "party", "aggressive"}},
		{BPM: f(120), Gain: f(-11.5), Key: "C", Mode: "Minor", Danceability: f(0.75), Moods: []string{"electronic", "relaxed", "acoustic"}},
		{Tempo: f(90), Key: "D"},
	}

	p := Aggregate("Tame Impala", tracks)
	assert.Equal(t, 4, p.TrackCount)
	assert.Equal(t, 118.75, *p.MedianTempo)
	assert.Equal(t, -10.2, *p.MedianLoudness)
	assert.Equal(t, []reference.KeyCount{{Key: "C Minor", Count: 2}, {Key: "F# Major", Count: 1}, {Key: "D", Count: 1}}, p.KeyHistogram)
	assert.Equal(t, []string{"electronic", "party", "happy"}, p.TopMoods)
}

func TestMostCommonKeepsFirstSeenOnTies(t *testing.T) {
	got := mostCommon([]string{"b", "a", "c", "a", "d", "e", "f", "b"}, 5)
	require.Len(t, got, 5)
	assert.Equal(t, counted{"b", 2}, got[0])
	assert.Equal(t, counted{"a", 2}, got[1])
	assert.Equal(t, "c", got[2].value)
	assert.Equal(t, "d", got[3].value)
	assert.Equal(t, "e", got[4].value)
}

func TestExtractMoods(t *testing.T) {
	hl := HighLevel{
		"danceability":     {All: map[string]float64{"danceable": 0.6, "not_danceable": 0.4}},
		"mood_happy":       {All: map[string]float64{"happy": 0.55, "not_happy": 0.45}},
		"mood_sad":         {All: map[string]float64{"sad": 0.2, "not_sad": 0.8}},
		"mood_party":       {All: map[string]float64{"party": 0.95, "not_party": 0.05}},
		"mood_relaxed":     {All: map[string]float64{"relaxed": 0.7, "not_relaxed": 0.3}},
		"mood_electronic":  {All: map[string]float64{"electronic": 0.65, "not_electronic": 0.35}},
		"genre_rosamerica": {All: map[string]float64{"pop": 0.9}},
	}

	m := ExtractMoods(hl)
	require.NotNil(t, m.Danceability)
	assert.Equal(t, 0.6, *m.Danceability)
	assert.Equal(t, []string{"party", "relaxed", "electronic"}, m.Moods)

	empty := ExtractMoods(HighLevel{})
	assert.Nil(t, empty.Danceability)
	assert.Empty(t, empty.Moods)
}

func TestDeezerClient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/track/isrc:GOOD":
			writeJSON(w, DeezerTrack{ID: 7, BPM: 128, Gain: -8.1})
		case "/track/isrc:NOBPM":
			writeJSON(w, DeezerTrack{ID: 8})
		default:
			writeJSON(w, map[string]any{"error": map[string]any{"code": 800}})
		}
	}))
	defer srv.Close()

	c := NewDeezerClient(srv.URL, nil, NewCache(t.TempDir()), fastRetry)
	ctx := context.Background()

	f, err := c.TrackByISRC(ctx, "GOOD")
	require.NoError(t, err)
	assert.Equal(t, 128.0, *f.BPM)
	assert.Equal(t, -8.1, *f.Gain)

	// served from the cache
	_, err = c.TrackByISRC(ctx, "GOOD")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	f, err = c.TrackByISRC(ctx, "NOBPM")
	require.NoError(t, err)
	assert.Nil(t, f.BPM)
	assert.Nil(t, f.Gain)

	_, err = c.TrackByISRC(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAudioDBClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/key123/searchtrack.php", r.URL.Path)
		switch r.URL.Query().Get("t") {
		case "Get Lucky":
			assert.Equal(t, "Daft Punk", r.URL.Query().Get("s"))
			writeJSON(w, map[string]any{"track": []any{map[string]any{"strKey": "6", "strMode": "Minor", "intBPM": "116"}}})
		case "Odd":
			writeJSON(w, map[string]any{"track": []any{map[string]any{"strKey": "12", "strMode": "", "intBPM": 98}}})
		default:
			writeJSON(w, map[string]any{"track": nil})
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewAudioDBClient(srv.URL, "key123", nil, nil, fastRetry)
	c.fetcher.limiter = nil
	require.True(t, c.Enabled())

	f, err := c.SearchTrack(ctx, "Daft Punk", "Get Lucky")
	require.NoError(t, err)
	assert.Equal(t, "F#", f.Key)
	assert.Equal(t, "Minor", f.Mode)
	assert.Equal(t, 116.0, *f.Tempo)

	f, err = c.SearchTrack(ctx, "Daft Punk", "Odd")
	require.NoError(t, err)
	assert.Empty(t, f.Key)
	assert.Equal(t, 98.0, *f.Tempo)

	_, err = c.SearchTrack(ctx, "Daft Punk", "Nothing")
	assert.ErrorIs(t, err, ErrNotFound)

	disabled := NewAudioDBClient(srv.URL, "", nil, nil, fastRetry)
	_, err = disabled.SearchTrack(ctx, "Daft Punk", "Get Lucky")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestAcousticBrainzNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{})
	}))
	defer srv.Close()

	_, err := NewAcousticBrainzClient(srv.URL, nil, nil, fastRetry).HighLevel(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantErr   bool
		wantCalls int32
	}{
		{"recovers after server errors", []int{503, 500, 200}, false, 3},
		{"recovers after rate limiting", []int{429, 200}, false, 2},
		{"gives up after max retries", []int{500, 500, 500, 500}, true, 3},
		{"does not retry client errors", []int{400}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.statuses[min(int(n)-1, len(tt.statuses)-1)]
				if status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "0")
				}
				if status != http.StatusOK {
					w.WriteHeader(status)
					return
				}
				writeJSON(w, map[string]int{"value": 1})
			}))
			defer srv.Close()

			var out map[string]int
			err := newFetcher("test", nil, nil, fastRetry).getJSON(context.Background(), srv.URL, &out)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, out["value"])
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestRetryNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	var out map[string]any
	err := newFetcher("test", nil, nil, fastRetry).getJSON(context.Background(), srv.URL, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Zero(t, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	assert.Greater(t, parseRetryAfter(resp), 59*time.Minute)

	resp.Header.Set("Retry-After", "soon")
	assert.Zero(t, parseRetryAfter(resp))
}

func TestRateLimiter(t *testing.T) {
	r := NewRateLimiter(2, 60*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, r.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	blocked := NewRateLimiter(1, time.Hour)
	require.NoError(t, blocked.Wait(ctx))
	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, blocked.Wait(ctx), context.DeadlineExceeded)
}

func TestCache(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)

	require.NoError(t, c.Save("deezer", "AUUM 715", DeezerTrack{ID: 3, BPM: 100}))
	_, err := os.Stat(filepath.Join(dir, "deezer_auum-715.json"))
	require.NoError(t, err)

	var got DeezerTrack
	require.True(t, c.Load("deezer", "AUUM 715", time.Hour, &got))
	assert.Equal(t, 100.0, got.BPM)

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.False(t, c.Load("deezer", "AUUM 715", time.Hour, &got))
	assert.True(t, c.Load("deezer", "AUUM 715", 0, &got))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "deezer_broken.json"), []byte("{not json"), 0o644))
	assert.False(t, c.Load("deezer", "broken", 0, &got))

	disabled := NewCache("")
	require.NoError(t, disabled.Save("deezer", "x", got))
	assert.False(t, disabled.Load("deezer", "x", 0, &got))
}

func TestSpotifySource(t *testing.T) {
	assert.Nil(t, NewSpotifySource(context.Background(), SpotifyConfig{}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			writeJSON(w, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
		case r.URL.Path == "/v1/search":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			writeJSON(w, map[string]any{"artists": map[string]any{"items": []any{
				map[string]any{"id": "art1", "name": "Tame Impala"},
			}}})
		case r.URL.Path == "/v1/artists/art1/top-tracks":
			writeJSON(w, map[string]any{"tracks": []any{
				map[string]any{"name": "Borderline", "external_ids": map[string]string{"isrc": "AUUM71900654"}},
				map[string]any{"name": "No ISRC", "external_ids": map[string]string{}},
				map[string]any{"name": "Let It Happen", "external_ids": map[string]string{"isrc": "AUUM71500454"}},
				map[string]any{"name": "Elephant", "external_ids": map[string]string{"isrc": "AUUM71200001"}},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewSpotifySource(context.Background(), SpotifyConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
		BaseURL:      srv.URL + "/v1",
	})
	require.NotNil(t, src)

	refs, err := src.TopTracks(context.Background(), "Tame Impala", 2)
	require.NoError(t, err)
	assert.Equal(t, []TrackRef{
		{Title: "Borderline", ISRC: "AUUM71900654"},
		{Title: "Let It Happen", ISRC: "AUUM71500454"},
	}, refs)
}
