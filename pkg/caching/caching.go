package caching

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache stores raw page bodies on disk keyed by URL. Entries older than the
// TTL are treated as missing; a TTL of zero or less never expires.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewCache creates dir if needed.
func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Path is the file backing url's entry.
func (c *Cache) Path(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, fmt.Sprintf("%x.html", sum))
}

// Get returns the cached body for url when present and fresh.
func (c *Cache) Get(url string) ([]byte, bool) {
	path := c.Path(url)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(info.ModTime()) > c.ttl {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set writes the body for url. The entry is written to a temp file and
// renamed so readers never see a partial page.
func (c *Cache) Set(url string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path(url)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}
