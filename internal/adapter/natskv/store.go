package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/TaskForge/internal/port/kv"
)

// Store implements kv.Store on a JetStream KV bucket so that OAuth state and
// delivery locks are shared across instances. Expiry is the bucket TTL; the
// per-call ttl is ignored.
type Store struct {
	kv jetstream.KeyValue
}

var _ kv.Store = (*Store)(nil)

// NewStore wraps a JetStream KV bucket.
func NewStore(bucket jetstream.KeyValue) *Store {
	return &Store{kv: bucket}
}

// Create stores value only if key is absent.
func (s *Store) Create(ctx context.Context, key string, value []byte, _ time.Duration) (uint64, error) {
	rev, err := s.kv.Create(ctx, key, value)
	if err != nil {
		return 0, mapErr("create", key, err)
	}
	return rev, nil
}

// Put stores value unconditionally.
func (s *Store) Put(ctx context.Context, key string, value []byte, _ time.Duration) (uint64, error) {
	rev, err := s.kv.Put(ctx, key, value)
	if err != nil {
		return 0, mapErr("put", key, err)
	}
	return rev, nil
}

// Get returns the current entry for key.
func (s *Store) Get(ctx context.Context, key string) (kv.Entry, error) {
	e, err := s.kv.Get(ctx, key)
	if err != nil {
		return kv.Entry{}, mapErr("get", key, err)
	}
	return kv.Entry{Key: e.Key(), Value: e.Value(), Revision: e.Revision()}, nil
}

// Update replaces value if the last revision of key equals revision.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := s.kv.Update(ctx, key, value, revision)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, kv.ErrRevisionMismatch
		}
		return 0, mapErr("update", key, err)
	}
	return rev, nil
}

// Delete removes key, conditionally when revision is non-zero.
func (s *Store) Delete(ctx context.Context, key string, revision uint64) error {
	var opts []jetstream.KVDeleteOpt
	if revision != 0 {
		opts = append(opts, jetstream.LastRevision(revision))
	}
	err := s.kv.Delete(ctx, key, opts...)
	if err == nil {
		return nil
	}
	mapped := mapErr("delete", key, err)
	if errors.Is(mapped, kv.ErrKeyNotFound) {
		return nil
	}
	return mapped
}

// Keys lists the keys of the bucket that start with prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("natskv list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for k := range lister.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func mapErr(op, key string, err error) error {
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
		return kv.ErrKeyNotFound
	case errors.Is(err, jetstream.ErrKeyExists):
		return kv.ErrKeyExists
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return kv.ErrRevisionMismatch
	}
	return fmt.Errorf("natskv %s %s: %w", op, key, err)
}
