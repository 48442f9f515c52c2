// Package connection defines a project's link to a GitHub repository and its
// derived health view.
package connection

import (
	"fmt"
	"time"
)

// StaleAfter is how long a connection may go without a webhook before it is
// reported as stale.
const StaleAfter = 24 * time.Hour

// Connection is a project's link to one GitHub repository.
type Connection struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	RepositoryFullName string     `json:"repository_full_name"`
	DefaultBranch      string     `json:"default_branch"`
	WebhookSecret      string     `json:"-"`
	IsActive           bool       `json:"is_active"`
	WebhookActive      bool       `json:"webhook_active"`
	LastWebhookAt      *time.Time `json:"last_webhook_at,omitempty"`
	ErrorCount         int        `json:"error_count"`
	LastError          string     `json:"last_error,omitempty"`
	LastErrorAt        *time.Time `json:"last_error_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Security is the read-only view the signature verifier needs.
type Security struct {
	Secret             string
	RepositoryFullName string
}

// Security returns the verification material of c.
func (c *Connection) Security() Security {
	return Security{Secret: c.WebhookSecret, RepositoryFullName: c.RepositoryFullName}
}

// Health is the operator-facing view of a connection.
type Health struct {
	ConnectionID  string     `json:"connection_id"`
	IsHealthy     bool       `json:"is_healthy"`
	Issues        []string   `json:"issues"`
	LastWebhookAt *time.Time `json:"last_webhook_at,omitempty"`
	ErrorCount    int        `json:"error_count"`
	LastError     string     `json:"last_error,omitempty"`
}

// Health derives the health view of c as of now.
func (c *Connection) Health(now time.Time) Health {
	issues := []string{}
	if !c.IsActive {
		issues = append(issues, "connection is inactive")
	}
	if !c.WebhookActive {
		issues = append(issues, "webhook is inactive")
	}
	if c.ErrorCount > 0 {
		issues = append(issues, fmt.Sprintf("%d recent webhook errors", c.ErrorCount))
	}
	if c.LastWebhookAt != nil && now.Sub(*c.LastWebhookAt) > StaleAfter {
		issues = append(issues, "no webhook events in the last 24h")
	}
	return Health{
		ConnectionID:  c.ID,
		IsHealthy:     len(issues) == 0,
		Issues:        issues,
		LastWebhookAt: c.LastWebhookAt,
		ErrorCount:    c.ErrorCount,
		LastError:     c.LastError,
	}
}

// RecordSuccess marks a webhook as handled at now and resets the error streak.
func (c *Connection) RecordSuccess(now time.Time) {
	c.LastWebhookAt = &now
	c.ErrorCount = 0
}

// RecordError counts a failed webhook.
func (c *Connection) RecordError(now time.Time, msg string) {
	c.ErrorCount++
	c.LastError = msg
	c.LastErrorAt = &now
}
