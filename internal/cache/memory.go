package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps entries in process memory. Entries are lost on restart.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a MemoryCache. Expired entries are purged every
// cleanupInterval.
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(defaultTTL, cleanupInterval)}
}

// Get returns a live entry
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set stores an entry. A zero ttl uses the cache default.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.items.Set(key, value, ttl)
	return nil
}

// Delete removes an entry
func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

// Clear removes every entry
func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}
