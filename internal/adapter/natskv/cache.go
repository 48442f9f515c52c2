// Package natskv implements the cache and kv ports on NATS JetStream KV buckets.
package natskv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/TaskForge/internal/port/cache"
	"github.com/Strob0t/TaskForge/internal/port/kv"
)

// Cache is the shared L2 connection cache. Entries expire with the bucket's
// max age; the per-entry ttl is not used.
type Cache struct {
	kv jetstream.KeyValue
}

var _ cache.Cache = (*Cache)(nil)

// New creates a cache on the given bucket.
func New(bucket jetstream.KeyValue) *Cache {
	return &Cache{kv: bucket}
}

// bucketKey maps a cache key such as "conn:repo:acme/app" onto the key
// alphabet of a bucket. Each ":"-separated part becomes one token.
func bucketKey(key string) string {
	parts := strings.Split(key, ":")
	for i, p := range parts {
		parts[i] = kv.SafeKey(p)
	}
	return strings.Join(parts, ".")
}

// Get returns the cached value for key.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, bucketKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr("cache get", key, err)
	}
	return entry.Value(), true, nil
}

// Set stores value under key.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, bucketKey(key), value); err != nil {
		return mapErr("cache set", key, err)
	}
	return nil
}

// Delete drops key. A missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, bucketKey(key))
	if err == nil || errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return mapErr("cache delete", key, err)
}
