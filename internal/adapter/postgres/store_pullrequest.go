package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TaskForge/internal/domain/webhook"
)

func (s *Store) FindPullRequestByNumber(ctx context.Context, projectID string, number int) (*webhook.PullRequestEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT number, title, description, status, merged, head_branch, head_sha, base_branch, author_login,
		   COALESCE(opened_at, 'epoch'), COALESCE(updated_at, 'epoch'), merged_at, closed_at,
		   additions, deletions, changed_files, commits, review_comments, comments
		 FROM github_pull_requests WHERE project_id = $1 AND number = $2`, projectID, number)

	var pr webhook.PullRequestEvent
	err := row.Scan(&pr.Number, &pr.Title, &pr.Description, &pr.Status, &pr.Merged, &pr.HeadBranch, &pr.HeadSHA,
		&pr.BaseBranch, &pr.AuthorLogin, &pr.CreatedAt, &pr.UpdatedAt, &pr.MergedAt, &pr.ClosedAt,
		&pr.Additions, &pr.Deletions, &pr.ChangedFiles, &pr.Commits, &pr.ReviewComments, &pr.Comments)
	if err != nil {
		return nil, notFoundWrap(err, "get pull request %s#%d", projectID, number)
	}
	return &pr, nil
}

// UpsertPullRequest stores the latest snapshot of pr.
func (s *Store) UpsertPullRequest(ctx context.Context, projectID string, pr *webhook.PullRequestEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO github_pull_requests (project_id, number, title, description, status, merged, head_branch, head_sha,
		   base_branch, author_login, opened_at, updated_at, merged_at, closed_at,
		   additions, deletions, changed_files, commits, review_comments, comments)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		 ON CONFLICT (project_id, number) DO UPDATE SET
		   title = EXCLUDED.title, description = EXCLUDED.description, status = EXCLUDED.status,
		   merged = EXCLUDED.merged, head_branch = EXCLUDED.head_branch, head_sha = EXCLUDED.head_sha,
		   base_branch = EXCLUDED.base_branch, updated_at = EXCLUDED.updated_at,
		   merged_at = EXCLUDED.merged_at, closed_at = EXCLUDED.closed_at,
		   additions = EXCLUDED.additions, deletions = EXCLUDED.deletions,
		   changed_files = EXCLUDED.changed_files, commits = EXCLUDED.commits,
		   review_comments = GREATEST(github_pull_requests.review_comments, EXCLUDED.review_comments),
		   comments = EXCLUDED.comments`,
		projectID, pr.Number, pr.Title, pr.Description, pr.Status, pr.Merged, pr.HeadBranch, pr.HeadSHA,
		pr.BaseBranch, pr.AuthorLogin, nullTime(pr.CreatedAt), nullTime(pr.UpdatedAt), pr.MergedAt, pr.ClosedAt,
		pr.Additions, pr.Deletions, pr.ChangedFiles, pr.Commits, pr.ReviewComments, pr.Comments)
	if err != nil {
		return fmt.Errorf("upsert pull request #%d: %w", pr.Number, err)
	}
	return nil
}

func (s *Store) UpdatePullRequestReviewComments(ctx context.Context, projectID string, number, count int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE github_pull_requests SET review_comments = $3 WHERE project_id = $1 AND number = $2`,
		projectID, number, count)
	return execExpectOne(tag, err, "update pull request %s#%d review comments", projectID, number)
}
