package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/port/kv"
)

const releaseTimeout = 5 * time.Second

// DeliveryLock makes sure a webhook delivery is handled by at most one request
// at a time. The lock key expires after ttl so a crashed holder cannot block a
// redelivery forever.
type DeliveryLock struct {
	store kv.Store
	ttl   time.Duration
}

// NewDeliveryLock creates a DeliveryLock backed by store.
func NewDeliveryLock(store kv.Store, ttl time.Duration) *DeliveryLock {
	return &DeliveryLock{store: store, ttl: ttl}
}

// WithLock runs fn while holding the lock for deliveryID. If another request
// holds it, fn is not run and the returned error wraps domain.ErrDuplicateDelivery.
// An empty id gets a fresh random one and therefore never collides.
func (l *DeliveryLock) WithLock(ctx context.Context, deliveryID string, fn func(context.Context) error) error {
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	key := "delivery." + kv.SafeKey(deliveryID)

	rev, err := l.store.Create(ctx, key, []byte(time.Now().UTC().Format(time.RFC3339Nano)), l.ttl)
	if errors.Is(err, kv.ErrKeyExists) {
		return fmt.Errorf("delivery %s: %w", deliveryID, domain.ErrDuplicateDelivery)
	}
	if err != nil {
		return fmt.Errorf("acquire delivery lock: %w", err)
	}

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := l.store.Delete(rctx, key, rev); err != nil {
			slog.WarnContext(ctx, "release delivery lock", "delivery_id", deliveryID, "error", err)
		}
	}()

	return fn(ctx)
}
