package reference

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "tame-impala", Slug("Tame Impala"))
	assert.Equal(t, "tame-impala", Slug("  TAME   impala "))
	assert.Equal(t, Slug("Beyoncé"), Slug("Beyonce"))
}

func TestCatalogLookup(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		name   string
		query  string
		want   string
		wantOK bool
	}{
		{"exact", "Daft Punk", "Daft Punk", true},
		{"case and spacing", "daft   PUNK", "Daft Punk", true},
		{"one typo", "Daft Punc", "Daft Punk", true},
		{"two typos", "Tame Impaler", "Tame Impala", true},
		{"too far", "Totally Unknown Band", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := c.Lookup(tt.query)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, p.Artist)
				assert.Equal(t, SourceCatalog, p.Source)
			}
		})
	}
}

func TestCatalogFuzzyTiePrefersFirst(t *testing.T) {
	c := NewCatalog(Profile{Artist: "abcd"}, Profile{Artist: "abce"})
	p, ok := c.Lookup("abcx")
	require.True(t, ok)
	assert.Equal(t, "abcd", p.Artist)
	assert.Equal(t, []string{"abcd", "abce"}, c.Artists())
}

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile("Nobody")
	assert.Equal(t, "Nobody", p.Artist)
	assert.Equal(t, SourceDefault, p.Source)
	assert.Equal(t, 120.0, *p.MedianTempo)
	assert.Equal(t, -14.0, *p.MedianLoudness)
}

func openStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "db", "profiles.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTripAndStaleness(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, time.Hour)

	_, err := s.Get(ctx, "Tame Impala")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	written := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return written }
	require.NoError(t, s.Put(ctx, Profile{
		Artist:       "Tame Impala",
		Source:       SourceHarvest,
		TrackCount:   3,
		MedianTempo:  Float(120),
		KeyHistogram: []KeyCount{{"C Minor", 2}},
		TopMoods:     []string{"electronic"},
	}))

	p, err := s.Get(ctx, "tame impala")
	require.NoError(t, err)
	assert.Equal(t, "tame-impala", p.Slug)
	assert.Equal(t, 120.0, *p.MedianTempo)
	assert.Nil(t, p.MedianLoudness)
	assert.Equal(t, []KeyCount{{"C Minor", 2}}, p.KeyHistogram)
	assert.True(t, written.Equal(p.UpdatedAt))

	s.now = func() time.Time { return written.Add(30 * time.Minute) }
	assert.False(t, s.IsStale(p))
	s.now = func() time.Time { return written.Add(2 * time.Hour) }
	assert.True(t, s.IsStale(p))

	// upsert replaces
	require.NoError(t, s.Put(ctx, Profile{Artist: "Tame Impala", TrackCount: 5}))
	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 5, all[0].TrackCount)
}

type fakeHarvester struct {
	profile Profile
	err     error
	calls   int
}

func (f *fakeHarvester) Harvest(ctx context.Context, artist string, limit int) (Profile, error) {
	f.calls++
	if f.err != nil {
		return Profile{}, f.err
	}
	p := f.profile
	p.Artist = artist
	return p, nil
}

func TestResolverOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("catalog without store or harvester", func(t *testing.T) {
		r := NewResolver(ResolverOptions{})
		assert.Equal(t, SourceCatalog, r.Resolve(ctx, "Daft Punk").Source)
		assert.Equal(t, SourceDefault, r.Resolve(ctx, "Unknown Garage Band").Source)
	})

	t.Run("harvest result is stored and reused", func(t *testing.T) {
		s := openStore(t, time.Hour)
		h := &fakeHarvester{profile: Profile{Source: SourceHarvest, TrackCount: 2, MedianTempo: Float(99)}}
		r := NewResolver(ResolverOptions{Store: s, Harvester: h})

		first := r.Resolve(ctx, "Daft Punk")
		assert.Equal(t, SourceHarvest, first.Source)
		assert.Equal(t, 99.0, *first.MedianTempo)

		second := r.Resolve(ctx, "Daft Punk")
		assert.Equal(t, 99.0, *second.MedianTempo)
		assert.Equal(t, 1, h.calls)
	})

	t.Run("harvest failure falls back to catalog", func(t *testing.T) {
		h := &fakeHarvester{err: errors.New("offline")}
		r := NewResolver(ResolverOptions{Harvester: h})
		assert.Equal(t, SourceCatalog, r.Resolve(ctx, "Radiohead").Source)
	})

	t.Run("stale profile beats catalog when harvest fails", func(t *testing.T) {
		s := openStore(t, time.Hour)
		s.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
		require.NoError(t, s.Put(ctx, Profile{Artist: "Radiohead", Source: SourceHarvest, MedianTempo: Float(101)}))
		s.now = time.Now

		h := &fakeHarvester{err: errors.New("offline")}
		r := NewResolver(ResolverOptions{Store: s, Harvester: h})
		p := r.Resolve(ctx, "Radiohead")
		assert.Equal(t, 1, h.calls)
		assert.Equal(t, 101.0, *p.MedianTempo)
	})

	t.Run("harvest honours its timeout", func(t *testing.T) {
		slow := harvesterFunc(func(ctx context.Context, artist string, limit int) (Profile, error) {
			<-ctx.Done()
			return Profile{}, ctx.Err()
		})
		r := NewResolver(ResolverOptions{Harvester: slow, HarvestTimeout: 20 * time.Millisecond})
		start := time.Now()
		p := r.Resolve(ctx, "No Such Artist Anywhere")
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, SourceDefault, p.Source)
	})
}

type harvesterFunc func(ctx context.Context, artist string, limit int) (Profile, error)

func (f harvesterFunc) Harvest(ctx context.Context, artist string, limit int) (Profile, error) {
	return f(ctx, artist, limit)
}

func TestResolveAllKeepsOrder(t *testing.T) {
	r := NewResolver(ResolverOptions{})
	profiles := r.ResolveAll(context.Background(), []string{"Dua Lipa", "Mystery", "Bon Iver"})
	require.Len(t, profiles, 3)
	assert.Equal(t, "Dua Lipa", profiles[0].Artist)
	assert.Equal(t, "Mystery", profiles[1].Artist)
	assert.Equal(t, SourceDefault, profiles[1].Source)
	assert.Equal(t, "Bon Iver", profiles[2].Artist)
}
