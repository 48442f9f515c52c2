package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TaskForge/internal/domain/webhook"
)

func (s *Store) CommitExistsBySHA(ctx context.Context, projectID, sha string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM github_commits WHERE project_id = $1 AND sha = $2)`, projectID, sha).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check commit %s: %w", sha, err)
	}
	return exists, nil
}

// CreateCommit inserts c. A concurrent insert of the same SHA is not an error.
func (s *Store) CreateCommit(ctx context.Context, projectID string, c *webhook.CommitEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO github_commits (project_id, sha, message, branch_name, is_from_main_branch, author_name, author_email,
		   author_username, url, committed_at, added, removed, modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (project_id, sha) DO NOTHING`,
		projectID, c.SHA, c.Message, c.BranchName, c.IsFromMainBranch, c.AuthorName, c.AuthorEmail,
		c.AuthorUsername, c.URL, nullTime(c.Timestamp), pgTextArray(c.Added), pgTextArray(c.Removed), pgTextArray(c.Modified))
	if err != nil {
		return fmt.Errorf("create commit %s: %w", c.SHA, err)
	}
	return nil
}
