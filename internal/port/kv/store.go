// Package kv defines the port for shared key-value state that needs atomic
// insert-if-absent, compare-and-swap and expiry.
package kv

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	// ErrKeyNotFound is returned when the key is absent or expired.
	ErrKeyNotFound = errors.New("kv: key not found")
	// ErrKeyExists is returned by Create when the key is already present.
	ErrKeyExists = errors.New("kv: key exists")
	// ErrRevisionMismatch is returned when a conditional write lost a race.
	ErrRevisionMismatch = errors.New("kv: revision mismatch")
)

// Entry is a stored value together with the revision that wrote it.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// Store is the port interface for concurrent key-value state.
//
// Implementations must be safe for concurrent use and must not serialize
// unrelated keys behind a single lock. A process-local implementation only
// protects a single instance; run a shared backend when scaling out.
type Store interface {
	// Create stores value only if key is absent. ttl <= 0 means no expiry
	// beyond the backend default.
	Create(ctx context.Context, key string, value []byte, ttl time.Duration) (revision uint64, err error)

	// Put stores value unconditionally.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) (revision uint64, err error)

	// Get returns the current entry or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Entry, error)

	// Update replaces value only if the stored revision equals revision.
	Update(ctx context.Context, key string, value []byte, revision uint64) (newRevision uint64, err error)

	// Delete removes key. A non-zero revision makes the delete conditional.
	// Deleting an absent key is not an error.
	Delete(ctx context.Context, key string, revision uint64) error

	// Keys lists the live keys that start with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// SafeKey returns part unchanged when it only uses characters every backend
// accepts in a key, and an "="-prefixed hex encoding otherwise.
func SafeKey(part string) string {
	if part != "" && part[0] != '=' && strings.IndexFunc(part, unsafeKeyRune) < 0 {
		return part
	}
	return "=" + hex.EncodeToString([]byte(part))
}

func unsafeKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '-' || r == '_':
		return false
	}
	return true
}
