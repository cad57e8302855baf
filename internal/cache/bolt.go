package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucket = "standardize_cache"

// BoltCache persists entries in a bucket of an open bbolt database so they
// survive restarts
type BoltCache struct {
	db         *bbolt.DB
	defaultTTL time.Duration
	now        func() time.Time
}

type boltEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewBoltCache creates the cache bucket if needed. The database is owned by
// the caller.
func NewBoltCache(db *bbolt.DB, defaultTTL time.Duration) (*BoltCache, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache bucket: %w", err)
	}
	return &BoltCache{db: db, defaultTTL: defaultTTL, now: time.Now}, nil
}

// Get returns a live entry. Expired entries are reported as missing and
// removed on the next Set of the same key.
func (c *BoltCache) Get(key string) ([]byte, bool) {
	var entry boltEntry
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("cache miss: %s", key)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil || !c.now().Before(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Value, true
}

// Set stores an entry. A zero ttl uses the cache default.
func (c *BoltCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(boltEntry{Value: value, ExpiresAt: c.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(key), data)
	})
}

// Delete removes an entry
func (c *BoltCache) Delete(key string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Delete([]byte(key))
	})
}

// Clear drops and recreates the cache bucket
func (c *BoltCache) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(boltBucket)); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(boltBucket))
		return err
	})
}
