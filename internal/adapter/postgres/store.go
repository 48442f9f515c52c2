package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/task"
	"github.com/Strob0t/TaskForge/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Tasks ---

func (s *Store) FindTaskByID(ctx context.Context, projectID, taskID string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, title, status, progress, completed_at, created_by, version, updated_at
		 FROM tasks WHERE project_id = $1 AND id = $2`, projectID, taskID)

	var t task.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Status, &t.Progress, &t.CompletedAt, &t.CreatedBy, &t.Version, &t.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s/%s", projectID, taskID)
	}
	return &t, nil
}

// SaveTaskStatus writes the status fields and the audit record in one
// transaction, guarded by the task version.
func (s *Store) SaveTaskStatus(ctx context.Context, t *task.Task, change task.StatusChange) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx,
		`UPDATE tasks SET status = $3, progress = $4, completed_at = $5, updated_at = $6, version = version + 1
		 WHERE project_id = $1 AND id = $2 AND version = $7`,
		t.ProjectID, t.ID, t.Status, t.Progress, t.CompletedAt, t.UpdatedAt, t.Version)
	if err != nil {
		return fmt.Errorf("update task %s status: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %s status: %w", t.ID, domain.ErrConflict)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO task_status_changes (project_id, task_id, old_status, new_status, actor, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ProjectID, change.TaskID, change.OldStatus, change.NewStatus, change.Actor, change.Source, change.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert status change for task %s: %w", t.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit task %s status: %w", t.ID, err)
	}
	t.Version++
	return nil
}
