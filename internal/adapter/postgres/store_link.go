package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TaskForge/internal/domain/link"
)

// RecordTaskLink inserts l unless a link for the same source and task exists.
func (s *Store) RecordTaskLink(ctx context.Context, projectID string, l link.TaskLink) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO task_links (project_id, source_type, source_id, task_id, link_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (project_id, source_id, task_id) DO NOTHING`,
		projectID, l.SourceType, l.SourceID, l.TaskID, l.Type, l.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("record link %s -> %s: %w", l.SourceID, l.TaskID, err)
	}
	return tag.RowsAffected() == 1, nil
}
