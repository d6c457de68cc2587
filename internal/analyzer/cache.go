package analyzer

import (
	"fmt"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/automarker/internal/decoder"
)

// DefaultCacheTTL is used when NewCache gets a non-positive TTL.
const DefaultCacheTTL = 24 * time.Hour

// Cache remembers beat lists keyed by file identity and analysis
// parameters. A nil *Cache is valid and never hits.
type Cache struct {
	items  *cache.Cache
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache returns a Cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{items: cache.New(ttl, ttl*2)}
}

// Key identifies the analysis of path decoded into format with cfg. The
// file size and modification time are part of the key, so an edited file
// misses.
func Key(path string, format decoder.Format, cfg Config) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%d|%d|%d/%d|%s",
		path, fi.Size(), fi.ModTime().UnixNano(), format.SampleRate, format.Channels, cfg.Key()), nil
}

// Get returns a copy of the cached beats for key.
func (c *Cache) Get(key string) ([]uint64, bool) {
	if c == nil {
		return nil, false
	}
	if v, found := c.items.Get(key); found {
		if beats, ok := v.([]uint64); ok {
			c.hits.Add(1)
			return slices.Clone(beats), true
		}
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores a copy of beats under key.
func (c *Cache) Set(key string, beats []uint64) {
	if c == nil {
		return
	}
	c.items.Set(key, slices.Clone(beats), cache.DefaultExpiration)
}

// Flush removes every entry.
func (c *Cache) Flush() {
	if c == nil {
		return
	}
	c.items.Flush()
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Items  int    `json:"items"`
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Items:  c.items.ItemCount(),
	}
}
