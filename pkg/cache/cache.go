// Package cache provides a pluggable byte cache used for vulnerability feed
// responses and repository metadata.
//
// Implementations:
//   - memory: process-local cache for single-instance deployments and tests
//   - redis: Redis-backed cache for multi-instance deployments
//   - null: no-op cache for disabling caching entirely
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores opaque byte values under string keys with optional expiration.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A ttl of zero means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources held by the cache.
	Close() error
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
