// Package memkv implements the kv port in process memory.
//
// Keys are spread over independently locked shards so unrelated keys never
// contend on one mutex. State is lost on restart and is not shared between
// instances.
package memkv

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Strob0t/TaskForge/internal/port/kv"
)

const shardCount = 64

type item struct {
	value     []byte
	revision  uint64
	ttl       time.Duration
	expiresAt time.Time // zero means no expiry
}

func (it *item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

type shard struct {
	mu    sync.RWMutex
	items map[string]*item
}

// Store is a sharded in-memory kv.Store.
type Store struct {
	shards   [shardCount]*shard
	revision atomic.Uint64
	now      func() time.Time // for testing
}

var _ kv.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	s := &Store{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]*item)}
	}
	return s
}

func (s *Store) shard(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%shardCount]
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// Create stores value only if key is absent or expired.
func (s *Store) Create(_ context.Context, key string, value []byte, ttl time.Duration) (uint64, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if it, ok := sh.items[key]; ok && !it.expired(s.now()) {
		return 0, kv.ErrKeyExists
	}
	rev := s.revision.Add(1)
	sh.items[key] = &item{value: clone(value), revision: rev, ttl: ttl, expiresAt: s.expiry(ttl)}
	return rev, nil
}

// Put stores value unconditionally.
func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) (uint64, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rev := s.revision.Add(1)
	sh.items[key] = &item{value: clone(value), revision: rev, ttl: ttl, expiresAt: s.expiry(ttl)}
	return rev, nil
}

// Get returns the live entry for key.
func (s *Store) Get(_ context.Context, key string) (kv.Entry, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	it, ok := sh.items[key]
	if !ok || it.expired(s.now()) {
		return kv.Entry{}, kv.ErrKeyNotFound
	}
	return kv.Entry{Key: key, Value: clone(it.value), Revision: it.revision}, nil
}

// Update replaces value if the stored revision matches. Like a JetStream
// bucket, a write restarts the entry's ttl.
func (s *Store) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	it, ok := sh.items[key]
	if !ok || it.expired(s.now()) {
		return 0, kv.ErrKeyNotFound
	}
	if it.revision != revision {
		return 0, kv.ErrRevisionMismatch
	}
	rev := s.revision.Add(1)
	sh.items[key] = &item{value: clone(value), revision: rev, ttl: it.ttl, expiresAt: s.expiry(it.ttl)}
	return rev, nil
}

// Delete removes key, conditionally when revision is non-zero.
func (s *Store) Delete(_ context.Context, key string, revision uint64) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	it, ok := sh.items[key]
	if !ok {
		return nil
	}
	if revision != 0 && it.revision != revision {
		return kv.ErrRevisionMismatch
	}
	delete(sh.items, key)
	return nil
}

// Keys lists live keys with the given prefix. Shards are visited one at a time.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	now := s.now()
	var keys []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, it := range sh.items {
			if strings.HasPrefix(k, prefix) && !it.expired(now) {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
	}
	return keys, nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, it := range sh.items {
			if it.expired(now) {
				delete(sh.items, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor sweeps expired entries every interval until ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Close drops all entries.
func (s *Store) Close() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.items = make(map[string]*item)
		sh.mu.Unlock()
	}
}
