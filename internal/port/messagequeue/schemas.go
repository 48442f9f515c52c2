package messagequeue

import "time"

// CommitLinkedPayload is the schema for github.commit.linked messages.
type CommitLinkedPayload struct {
	ProjectID  string `json:"project_id"`
	TaskID     string `json:"task_id"`
	SHA        string `json:"sha"`
	BranchName string `json:"branch_name"`
	LinkType   string `json:"link_type"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// PRLinkedPayload is the schema for github.pr.linked messages.
type PRLinkedPayload struct {
	ProjectID  string `json:"project_id"`
	TaskID     string `json:"task_id"`
	Number     int    `json:"number"`
	Status     string `json:"status"`
	Merged     bool   `json:"merged"`
	LinkType   string `json:"link_type"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// TaskStatusChangedPayload is the schema for task.status.changed messages.
type TaskStatusChangedPayload struct {
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Actor     string    `json:"actor"`
	Source    string    `json:"source"`
	ChangedAt time.Time `json:"changed_at"`
}
