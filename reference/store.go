package reference

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	slug       TEXT PRIMARY KEY,
	artist     TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Store persists harvested profiles in SQLite
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	logger logging.Logger
}

// OpenStore opens (creating if needed) the profile database at path. A zero ttl means
// stored profiles never go stale.
func OpenStore(path string, ttl time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Store{
		db:  db,
		ttl: ttl,
		now: time.Now,
		logger: logging.WithFields(logging.Fields{
			"component": "reference_store",
			"path":      path,
		}),
	}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get loads the stored profile for artist, or ErrProfileNotFound
func (s *Store) Get(ctx context.Context, artist string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT data, updated_at FROM profiles WHERE slug = ?", Slug(artist))

	var data string
	var updated int64
	if err := row.Scan(&data, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, fmt.Errorf("failed to load profile: %w", err)
	}

	var p Profile
	if err := json.UnmarshalFromString(data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile %q: %w", artist, err)
	}
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return p, nil
}

// Put inserts or replaces a profile, stamping it with the current time
func (s *Store) Put(ctx context.Context, p Profile) error {
	if p.Slug == "" {
		p.Slug = Slug(p.Artist)
	}
	p.UpdatedAt = s.now().UTC()

	data, err := json.MarshalToString(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (slug, artist, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET artist = excluded.artist, data = excluded.data, updated_at = excluded.updated_at
	`, p.Slug, p.Artist, data, p.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}

	s.logger.Debug("Stored reference profile", logging.Fields{
		"slug":        p.Slug,
		"track_count": p.TrackCount,
	})
	return nil
}

// List returns every stored profile ordered by artist
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data, updated_at FROM profiles ORDER BY artist ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var data string
		var updated int64
		if err := rows.Scan(&data, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		var p Profile
		if err := json.UnmarshalFromString(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		p.UpdatedAt = time.Unix(0, updated).UTC()
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// IsStale reports whether p is older than the store's TTL
func (s *Store) IsStale(p Profile) bool {
	return s.ttl > 0 && s.now().Sub(p.UpdatedAt) > s.ttl
}
