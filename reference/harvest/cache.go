package harvest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"
)

// Cache stores raw API payloads as JSON files named <namespace>_<slug>.json.
// A Cache with an empty directory stores nothing.
type Cache struct {
	dir string
	now func() time.Time
}

// NewCache creates a file cache rooted at dir
func NewCache(dir string) *Cache {
	return &Cache{dir: dir, now: time.Now}
}

func (c *Cache) path(namespace, key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.json", namespace, slug.Make(key)))
}

// Load decodes a cached entry into v. A zero ttl never expires. Missing, expired and
// corrupted entries are misses.
func (c *Cache) Load(namespace, key string, ttl time.Duration, v any) bool {
	if c == nil || c.dir == "" {
		return false
	}

	path := c.path(namespace, key)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if ttl > 0 && c.now().Sub(info.ModTime()) >= ttl {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// Save writes v under namespace and key
func (c *Cache) Save(namespace, key string, v any) error {
	if c == nil || c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	// write then rename so concurrent readers never see a partial file
	path := c.path(namespace, key)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
