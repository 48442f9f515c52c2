package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/TaskForge/internal/config"
	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/oauth"
	"github.com/Strob0t/TaskForge/internal/port/kv"
)

const (
	statePrefix    = "state."
	indexPrefix    = "user."
	consumedPrefix = "consumed."

	maxCASAttempts = 8
)

// OAuthStateStore issues and redeems one-time authorization states.
//
// Each (user, project) pair has at most one live state: issuing a new one
// invalidates the previous token. A state can be redeemed once, only before it
// expires, and only while it is still the pair's current state. All of this is
// enforced with conditional writes on the kv store, so concurrent redemptions
// of one token succeed exactly once.
type OAuthStateStore struct {
	kv          kv.Store
	ttl         time.Duration
	consumedCap int
	now         func() time.Time
}

// CleanupStats reports what one cleanup pass removed.
type CleanupStats struct {
	ExpiredStates   int
	OrphanIndexes   int
	ConsumedCleared int
}

// NewOAuthStateStore creates a state store on top of store.
func NewOAuthStateStore(store kv.Store, cfg config.OAuth) *OAuthStateStore {
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = oauth.StateTTL
	}
	return &OAuthStateStore{kv: store, ttl: ttl, consumedCap: cfg.ConsumedCap, now: time.Now}
}

func stateKey(token string) string    { return statePrefix + token }
func consumedKey(token string) string { return consumedPrefix + token }
func indexKey(userID, projectID string) string {
	return indexPrefix + kv.SafeKey(userID) + "." + kv.SafeKey(projectID)
}

// Generate issues a new state for (userID, projectID) and invalidates any
// earlier one for the same pair.
func (s *OAuthStateStore) Generate(ctx context.Context, userID, projectID string) (*oauth.AuthorizationState, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("user id and project id are required: %w", domain.ErrValidation)
	}

	token, err := generateRandomToken(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate state token: %w", err)
	}
	st := oauth.AuthorizationState{
		Token:     token,
		RequestID: uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		CreatedAt: s.now().UTC(),
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	if _, err := s.kv.Create(ctx, stateKey(token), data, s.ttl); err != nil {
		return nil, fmt.Errorf("store state: %w", err)
	}

	prev, err := s.swapIndex(ctx, indexKey(userID, projectID), token)
	if err != nil {
		if delErr := s.kv.Delete(ctx, stateKey(token), 0); delErr != nil {
			slog.WarnContext(ctx, "drop unindexed state", "error", delErr)
		}
		return nil, err
	}
	if prev != "" && prev != token {
		s.invalidate(ctx, prev)
	}
	return &st, nil
}

// swapIndex points the pair's index at token and returns the token it
// replaced, if any.
func (s *OAuthStateStore) swapIndex(ctx context.Context, key, token string) (string, error) {
	for range maxCASAttempts {
		e, err := s.kv.Get(ctx, key)
		if errors.Is(err, kv.ErrKeyNotFound) {
			_, err = s.kv.Create(ctx, key, []byte(token), s.ttl)
			if err == nil {
				return "", nil
			}
			if errors.Is(err, kv.ErrKeyExists) {
				continue
			}
			return "", fmt.Errorf("create state index: %w", err)
		}
		if err != nil {
			return "", fmt.Errorf("read state index: %w", err)
		}

		_, err = s.kv.Update(ctx, key, []byte(token), e.Revision)
		if err == nil {
			return string(e.Value), nil
		}
		if errors.Is(err, kv.ErrRevisionMismatch) || errors.Is(err, kv.ErrKeyNotFound) {
			continue
		}
		return "", fmt.Errorf("update state index: %w", err)
	}
	return "", fmt.Errorf("state index for %s kept changing: %w", key, domain.ErrConflict)
}

// invalidate retires a superseded token. Failures leave a state that the index
// check in ValidateAndConsume still rejects.
func (s *OAuthStateStore) invalidate(ctx context.Context, token string) {
	if _, err := s.kv.Put(ctx, consumedKey(token), nil, s.ttl); err != nil {
		slog.WarnContext(ctx, "mark superseded state", "error", err)
	}
	if err := s.kv.Delete(ctx, stateKey(token), 0); err != nil {
		slog.WarnContext(ctx, "delete superseded state", "error", err)
	}
}

// ValidateAndConsume redeems token. Every rejection returns an error wrapping
// domain.ErrInvalidState regardless of cause. Store failures are returned as
// they are.
func (s *OAuthStateStore) ValidateAndConsume(ctx context.Context, token string) (*oauth.AuthorizationState, error) {
	token = strings.TrimSpace(token)
	if !isHexToken(token) {
		return nil, domain.ErrInvalidState
	}

	if _, err := s.kv.Get(ctx, consumedKey(token)); err == nil {
		return nil, domain.ErrInvalidState
	} else if !errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("read consumed marker: %w", err)
	}

	e, err := s.kv.Get(ctx, stateKey(token))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, domain.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st oauth.AuthorizationState
	if err := json.Unmarshal(e.Value, &st); err != nil || st.Token != token {
		_ = s.kv.Delete(ctx, stateKey(token), e.Revision)
		return nil, domain.ErrInvalidState
	}
	if st.Expired(s.now(), s.ttl) {
		_ = s.kv.Delete(ctx, stateKey(token), e.Revision)
		return nil, domain.ErrInvalidState
	}
	if st.Consumed {
		return nil, domain.ErrInvalidState
	}

	idxKey := indexKey(st.UserID, st.ProjectID)
	idx, err := s.kv.Get(ctx, idxKey)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, domain.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("read state index: %w", err)
	}
	if string(idx.Value) != token {
		return nil, domain.ErrInvalidState
	}

	st.Consumed = true
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	if _, err := s.kv.Update(ctx, stateKey(token), data, e.Revision); err != nil {
		if errors.Is(err, kv.ErrRevisionMismatch) || errors.Is(err, kv.ErrKeyNotFound) {
			return nil, domain.ErrInvalidState
		}
		return nil, fmt.Errorf("consume state: %w", err)
	}

	// A Generate that raced past the index check has already superseded us.
	if err := s.kv.Delete(ctx, idxKey, idx.Revision); err != nil {
		if errors.Is(err, kv.ErrRevisionMismatch) {
			return nil, domain.ErrInvalidState
		}
		return nil, fmt.Errorf("release state index: %w", err)
	}

	if _, err := s.kv.Put(ctx, consumedKey(token), nil, s.ttl); err != nil {
		slog.WarnContext(ctx, "mark consumed state", "error", err)
	}
	if err := s.kv.Delete(ctx, stateKey(token), 0); err != nil {
		slog.WarnContext(ctx, "delete consumed state", "error", err)
	}
	return &st, nil
}

// Cleanup removes expired states with their index entries, index entries whose
// state is gone, and the consumed markers once there are more than the
// configured cap.
func (s *OAuthStateStore) Cleanup(ctx context.Context) (CleanupStats, error) {
	var stats CleanupStats
	now := s.now()

	keys, err := s.kv.Keys(ctx, statePrefix)
	if err != nil {
		return stats, fmt.Errorf("list states: %w", err)
	}
	for _, key := range keys {
		e, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var st oauth.AuthorizationState
		if err := json.Unmarshal(e.Value, &st); err == nil && !st.Expired(now, s.ttl) {
			continue
		}
		if err := s.kv.Delete(ctx, key, e.Revision); err != nil {
			continue
		}
		stats.ExpiredStates++
	}

	idxKeys, err := s.kv.Keys(ctx, indexPrefix)
	if err != nil {
		return stats, fmt.Errorf("list state indexes: %w", err)
	}
	for _, key := range idxKeys {
		idx, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		if _, err := s.kv.Get(ctx, stateKey(string(idx.Value))); !errors.Is(err, kv.ErrKeyNotFound) {
			continue
		}
		if err := s.kv.Delete(ctx, key, idx.Revision); err == nil {
			stats.OrphanIndexes++
		}
	}

	consumed, err := s.kv.Keys(ctx, consumedPrefix)
	if err != nil {
		return stats, fmt.Errorf("list consumed markers: %w", err)
	}
	if len(consumed) > s.consumedCap {
		for _, key := range consumed {
			if err := s.kv.Delete(ctx, key, 0); err == nil {
				stats.ConsumedCleared++
			}
		}
	}
	return stats, nil
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (s *OAuthStateStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := s.Cleanup(ctx)
				if err != nil {
					slog.Warn("oauth state cleanup failed", "error", err)
				} else if stats.ExpiredStates+stats.OrphanIndexes+stats.ConsumedCleared > 0 {
					slog.Info("oauth state cleanup",
						"expired", stats.ExpiredStates,
						"orphan_indexes", stats.OrphanIndexes,
						"consumed_cleared", stats.ConsumedCleared,
					)
				}
			}
		}
	}()
}
