package postgres

import (
	"context"
	"time"

	"github.com/Strob0t/TaskForge/internal/domain/connection"
)

const connectionColumns = `id, project_id, repository_full_name, default_branch, webhook_secret, is_active, webhook_active,
	last_webhook_at, error_count, last_error, last_error_at, created_at`

func scanConnection(row scannable) (*connection.Connection, error) {
	var c connection.Connection
	err := row.Scan(&c.ID, &c.ProjectID, &c.RepositoryFullName, &c.DefaultBranch, &c.WebhookSecret, &c.IsActive, &c.WebhookActive,
		&c.LastWebhookAt, &c.ErrorCount, &c.LastError, &c.LastErrorAt, &c.CreatedAt)
	return &c, err
}

func (s *Store) GetConnection(ctx context.Context, id string) (*connection.Connection, error) {
	c, err := scanConnection(s.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM github_connections WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get connection %s", id)
	}
	return c, nil
}

func (s *Store) FindConnectionByRepository(ctx context.Context, fullName string) (*connection.Connection, error) {
	c, err := scanConnection(s.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM github_connections WHERE lower(repository_full_name) = lower($1)`, fullName))
	if err != nil {
		return nil, notFoundWrap(err, "get connection for %s", fullName)
	}
	return c, nil
}

func (s *Store) FindConnectionBySecret(ctx context.Context, secret string) (*connection.Connection, error) {
	c, err := scanConnection(s.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM github_connections WHERE webhook_secret = $1`, secret))
	if err != nil {
		return nil, notFoundWrap(err, "get connection by secret")
	}
	return c, nil
}

func (s *Store) RecordWebhookSuccess(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE github_connections SET last_webhook_at = $2, error_count = 0 WHERE id = $1`, id, at)
	return execExpectOne(tag, err, "record webhook success %s", id)
}

func (s *Store) RecordWebhookError(ctx context.Context, id, msg string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE github_connections SET error_count = error_count + 1, last_error = $2, last_error_at = $3 WHERE id = $1`,
		id, msg, at)
	return execExpectOne(tag, err, "record webhook error %s", id)
}
