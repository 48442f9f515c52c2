// Package secrets holds credentials that can be rotated without a restart.
package secrets

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// GitHubClientSecret is the key of the GitHub OAuth app secret.
const GitHubClientSecret = "client_secret"

// Loader retrieves secrets from a source (env vars, a mounted directory, ...).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Lookup returns a func that reads key on every call, falling back to
// fallback while the vault has no value for it.
func (v *Vault) Lookup(key, fallback string) func() string {
	return func() string {
		if s := v.Get(key); s != "" {
			return s
		}
		return fallback
	}
}

// Keys returns the loaded secret names in sorted order.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Sorted(maps.Keys(v.values))
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}

// Redacted returns a masked form of the secret for key, safe to log.
func (v *Vault) Redacted(key string) string {
	return redact(v.Get(key))
}

func redact(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****"
	}
}

// RedactString masks every loaded secret that occurs in s. Secrets shorter
// than four characters are left alone.
func (v *Vault) RedactString(s string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, secret := range v.values {
		if len(secret) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, secret, redact(secret))
	}
	return s
}
