package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Strob0t/TaskForge/internal/domain/connection"
	"github.com/Strob0t/TaskForge/internal/port/database"
)

// maxErrorMessage bounds the error text stored on a connection.
const maxErrorMessage = 1000

// HealthTracker records webhook outcomes per connection and derives the
// operator-facing health view.
type HealthTracker struct {
	store database.ConnectionStore
	now   func() time.Time
}

// NewHealthTracker creates a HealthTracker.
func NewHealthTracker(store database.ConnectionStore) *HealthTracker {
	return &HealthTracker{store: store, now: time.Now}
}

// RecordSuccess stamps the last webhook time and resets the error count.
func (h *HealthTracker) RecordSuccess(ctx context.Context, conn *connection.Connection) error {
	now := h.now().UTC()
	conn.RecordSuccess(now)
	if err := h.store.RecordWebhookSuccess(ctx, conn.ID, now); err != nil {
		return fmt.Errorf("record webhook success for %s: %w", conn.ID, err)
	}
	return nil
}

// RecordError increments the error count and stores msg as the last error.
func (h *HealthTracker) RecordError(ctx context.Context, conn *connection.Connection, msg string) error {
	msg = truncate(msg, maxErrorMessage)
	now := h.now().UTC()
	conn.RecordError(now, msg)
	if err := h.store.RecordWebhookError(ctx, conn.ID, msg, now); err != nil {
		return fmt.Errorf("record webhook error for %s: %w", conn.ID, err)
	}
	return nil
}

// Health loads connection id and reports its health as of now.
func (h *HealthTracker) Health(ctx context.Context, id string) (connection.Health, error) {
	conn, err := h.store.GetConnection(ctx, id)
	if err != nil {
		return connection.Health{}, fmt.Errorf("get connection %s: %w", id, err)
	}
	return conn.Health(h.now()), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
