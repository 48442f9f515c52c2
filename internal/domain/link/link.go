// Package link defines how commits and pull requests are tied to tasks.
package link

import "time"

// Type classifies how a piece of text references a task.
type Type string

const (
	TypeReference Type = "REFERENCE"
	TypeCloses    Type = "CLOSES"
	TypeFixes     Type = "FIXES"
	TypeResolves  Type = "RESOLVES"
)

// IsClosing reports whether the link type completes the task when it lands.
func (t Type) IsClosing() bool {
	return t == TypeCloses || t == TypeFixes || t == TypeResolves
}

// SourceType is the kind of GitHub object that produced a link.
type SourceType string

const (
	SourceCommit      SourceType = "COMMIT"
	SourcePullRequest SourceType = "PR"
)

// TaskLink is an immutable association between a commit or pull request and a
// task. At most one exists per (SourceID, TaskID).
type TaskLink struct {
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	TaskID     string     `json:"task_id"`
	Type       Type       `json:"link_type"`
	CreatedAt  time.Time  `json:"created_at"`
}

// New builds a TaskLink stamped with createdAt.
func New(source SourceType, sourceID, taskID string, t Type, createdAt time.Time) TaskLink {
	return TaskLink{
		SourceType: source,
		SourceID:   sourceID,
		TaskID:     taskID,
		Type:       t,
		CreatedAt:  createdAt,
	}
}
