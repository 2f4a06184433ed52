// Package cache stores raw search backend responses so repeated analyses of
// the same idea do not re-query the backend.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

const keyPrefix = "assay:v1:"

// Key builds a cache key from request parts, typically backend URL, query and
// result limit
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return keyPrefix + hex.EncodeToString(hash[:])
}
