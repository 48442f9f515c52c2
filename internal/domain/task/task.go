// Package task defines the Task state that GitHub activity drives.
package task

import "time"

// Status represents the current state of a task.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReview     Status = "REVIEW"
	StatusDone       Status = "DONE"
	StatusCancelled  Status = "CANCELLED"
)

// Task is the slice of a product task the integration reads and writes.
// Everything else about a task lives with the task owner.
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	Version     int        `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StatusChange is the audit record written for every automatic transition.
// Actor is the task creator: webhook events carry no authenticated product user.
type StatusChange struct {
	TaskID    string    `json:"task_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	Actor     string    `json:"actor"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
