package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/TaskForge/internal/domain/connection"
	"github.com/Strob0t/TaskForge/internal/port/cache"
	"github.com/Strob0t/TaskForge/internal/port/database"
)

// ConnectionCache serves repository-to-connection lookups for the webhook hot
// path. Entries may be stale for up to ttl after a connection changes unless
// Invalidate is called.
type ConnectionCache struct {
	cache cache.Cache
	store database.ConnectionStore
	ttl   time.Duration
}

// cachedConnection carries the webhook secret, which the domain type never
// serializes.
type cachedConnection struct {
	Connection connection.Connection `json:"connection"`
	Secret     string                `json:"secret"`
}

// NewConnectionCache creates a ConnectionCache. A nil cache disables caching.
func NewConnectionCache(c cache.Cache, store database.ConnectionStore, ttl time.Duration) *ConnectionCache {
	return &ConnectionCache{cache: c, store: store, ttl: ttl}
}

func repoCacheKey(fullName string) string {
	return "conn:repo:" + strings.ToLower(fullName)
}

func idCacheKey(id string) string {
	return "conn:id:" + id
}

// ByRepository returns the connection for a repository full name.
func (c *ConnectionCache) ByRepository(ctx context.Context, fullName string) (*connection.Connection, error) {
	return c.lookup(ctx, repoCacheKey(fullName), func(ctx context.Context) (*connection.Connection, error) {
		return c.store.FindConnectionByRepository(ctx, fullName)
	})
}

// ByID returns the connection with the given id.
func (c *ConnectionCache) ByID(ctx context.Context, id string) (*connection.Connection, error) {
	return c.lookup(ctx, idCacheKey(id), func(ctx context.Context) (*connection.Connection, error) {
		return c.store.GetConnection(ctx, id)
	})
}

func (c *ConnectionCache) lookup(ctx context.Context, key string, load func(context.Context) (*connection.Connection, error)) (*connection.Connection, error) {
	if c.cache != nil {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var cc cachedConnection
			if err := json.Unmarshal(data, &cc); err == nil {
				conn := cc.Connection
				conn.WebhookSecret = cc.Secret
				return &conn, nil
			}
		}
	}

	conn, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		data, err := json.Marshal(cachedConnection{Connection: *conn, Secret: conn.WebhookSecret})
		if err == nil {
			if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
				slog.WarnContext(ctx, "cache connection", "key", key, "error", err)
			}
		}
	}
	return conn, nil
}

// Invalidate drops both cached lookups of conn.
func (c *ConnectionCache) Invalidate(ctx context.Context, conn *connection.Connection) error {
	if c.cache == nil {
		return nil
	}
	return errors.Join(
		c.cache.Delete(ctx, repoCacheKey(conn.RepositoryFullName)),
		c.cache.Delete(ctx, idCacheKey(conn.ID)),
	)
}
