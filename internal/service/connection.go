package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/connection"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
	"github.com/Strob0t/TaskForge/internal/port/database"
)

const maxSecretAttempts = 5

// ConnectionService provides the repository-connection operations the product
// calls when it registers a webhook with GitHub.
type ConnectionService struct {
	store  database.ConnectionStore
	health *HealthTracker
	cache  *ConnectionCache
}

// WebhookConfig is the hook configuration sent to GitHub on registration.
type WebhookConfig struct {
	URL         string   `json:"url"`
	ContentType string   `json:"content_type"`
	Secret      string   `json:"secret"`
	Events      []string `json:"events"`
	Active      bool     `json:"active"`
}

// NewConnectionService creates a ConnectionService.
func NewConnectionService(store database.ConnectionStore, health *HealthTracker, cache *ConnectionCache) *ConnectionService {
	return &ConnectionService{store: store, health: health, cache: cache}
}

// CreateWebhookSecret returns a random secret not used by any connection.
func (s *ConnectionService) CreateWebhookSecret(ctx context.Context) (string, error) {
	for range maxSecretAttempts {
		secret, err := generateRandomToken(tokenBytes)
		if err != nil {
			return "", fmt.Errorf("generate webhook secret: %w", err)
		}
		_, err = s.store.FindConnectionBySecret(ctx, secret)
		if errors.Is(err, domain.ErrNotFound) {
			return secret, nil
		}
		if err != nil {
			return "", fmt.Errorf("check webhook secret: %w", err)
		}
	}
	return "", fmt.Errorf("webhook secret kept colliding: %w", domain.ErrConflict)
}

// WebhookConfig builds the hook registration for callbackURL with a fresh secret.
func (s *ConnectionService) WebhookConfig(ctx context.Context, callbackURL string) (*WebhookConfig, error) {
	if callbackURL == "" {
		return nil, fmt.Errorf("callback url is required: %w", domain.ErrValidation)
	}
	secret, err := s.CreateWebhookSecret(ctx)
	if err != nil {
		return nil, err
	}
	return &WebhookConfig{
		URL:         callbackURL,
		ContentType: "json",
		Secret:      secret,
		Events:      webhook.RegisteredEvents(),
		Active:      true,
	}, nil
}

// Health reports the health of connection id.
func (s *ConnectionService) Health(ctx context.Context, id string) (connection.Health, error) {
	return s.health.Health(ctx, id)
}

// Invalidate drops any cached lookup of the connection after the product
// changed it.
func (s *ConnectionService) Invalidate(ctx context.Context, id string) error {
	conn, err := s.store.GetConnection(ctx, id)
	if err != nil {
		return fmt.Errorf("get connection %s: %w", id, err)
	}
	return s.cache.Invalidate(ctx, conn)
}
