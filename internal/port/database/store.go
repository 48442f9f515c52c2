// Package database defines the narrow store ports the GitHub integration
// needs from the product database.
package database

import (
	"context"
	"time"

	"github.com/Strob0t/TaskForge/internal/domain/connection"
	"github.com/Strob0t/TaskForge/internal/domain/link"
	"github.com/Strob0t/TaskForge/internal/domain/task"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
)

// TaskStore reads and writes task status. Task ids are scoped to a project.
type TaskStore interface {
	// FindTaskByID returns domain.ErrNotFound if the task does not exist.
	FindTaskByID(ctx context.Context, projectID, taskID string) (*task.Task, error)

	// SaveTaskStatus persists the status fields of t together with the audit
	// record. It fails with domain.ErrConflict if t.Version is stale and
	// increments t.Version on success.
	SaveTaskStatus(ctx context.Context, t *task.Task, change task.StatusChange) error
}

// ConnectionStore reads repository connections and updates their health
// counters. The counter updates must be atomic in the store so concurrent
// deliveries for one repository never lose an increment.
type ConnectionStore interface {
	GetConnection(ctx context.Context, id string) (*connection.Connection, error)
	FindConnectionByRepository(ctx context.Context, fullName string) (*connection.Connection, error)
	FindConnectionBySecret(ctx context.Context, secret string) (*connection.Connection, error)
	RecordWebhookSuccess(ctx context.Context, id string, at time.Time) error
	RecordWebhookError(ctx context.Context, id, msg string, at time.Time) error
}

// CommitStore records commits seen in push events.
type CommitStore interface {
	CommitExistsBySHA(ctx context.Context, projectID, sha string) (bool, error)
	CreateCommit(ctx context.Context, projectID string, c *webhook.CommitEvent) error
}

// PullRequestStore records pull request snapshots.
type PullRequestStore interface {
	// FindPullRequestByNumber returns domain.ErrNotFound if the PR is unknown.
	FindPullRequestByNumber(ctx context.Context, projectID string, number int) (*webhook.PullRequestEvent, error)
	UpsertPullRequest(ctx context.Context, projectID string, pr *webhook.PullRequestEvent) error
	UpdatePullRequestReviewComments(ctx context.Context, projectID string, number, count int) error
}

// LinkStore records task links. Links are unique per (SourceID, TaskID).
type LinkStore interface {
	// RecordTaskLink reports false when the link already existed.
	RecordTaskLink(ctx context.Context, projectID string, l link.TaskLink) (bool, error)
}

// Store is the union of all stores, implemented by the postgres adapter.
type Store interface {
	TaskStore
	ConnectionStore
	CommitStore
	PullRequestStore
	LinkStore
}
