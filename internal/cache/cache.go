// Package cache stores standardization results keyed by the batch of names
// that produced them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Cache is a byte-value cache with per-entry expiry
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds an order-independent key for a batch of names: the same set
// of names always maps to the same key
func Key(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return "standardize:v1:" + hex.EncodeToString(sum[:])
}
