// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key joins parts into a cache key. Dots separate parts so keys stay valid
// NATS KV keys.
func Key(parts ...string) string {
	return strings.Join(parts, ".")
}
