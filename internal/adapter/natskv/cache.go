// Package natskv implements the cache port using NATS JetStream KV as the
// shared L2 cache between AppHub replicas.
package natskv

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a NATS JetStream KeyValue store as an L2 cache.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed cache. Entry lifetime is the bucket TTL.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get retrieves a value from the NATS KV store.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, EncodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set stores a value in the NATS KV store. TTL is managed at bucket level.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, EncodeKey(key), value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes a value from the NATS KV store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, EncodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// EncodeKey maps key onto the KV key alphabet. Keys made only of
// [A-Za-z0-9_=.-] pass through unchanged, anything else is hex encoded
// behind an "x." prefix.
func EncodeKey(key string) string {
	for i := 0; i < len(key); i++ {
		if !validKeyByte(key[i]) {
			return "x." + hex.EncodeToString([]byte(key))
		}
	}
	if key == "" || key[0] == '.' || key[len(key)-1] == '.' {
		return "x." + hex.EncodeToString([]byte(key))
	}
	return key
}

func validKeyByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '=' || b == '.':
		return true
	}
	return false
}
