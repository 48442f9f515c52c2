// Package webhook defines domain types for GitHub webhook deliveries and events.
package webhook

import (
	"strings"
	"time"
)

// EventType classifies the GitHub webhook event (X-GitHub-Event header).
type EventType string

const (
	EventPush              EventType = "push"
	EventPullRequest       EventType = "pull_request"
	EventPullRequestReview EventType = "pull_request_review"
	EventPing              EventType = "ping"
)

// RegisteredEvents lists the events a new repository webhook subscribes to.
func RegisteredEvents() []string {
	return []string{string(EventPush), string(EventPullRequest), string(EventPullRequestReview)}
}

// Delivery is a single inbound webhook transmission. ID is only a dedupe key.
// ConnectionID is set when the hook was registered on a per-connection URL;
// otherwise the connection is found through the repository in the body.
type Delivery struct {
	ID           string    `json:"delivery_id"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Event        EventType `json:"event_type"`
	Action       string    `json:"action,omitempty"`
	Signature    string    `json:"-"`
	Body         []byte    `json:"-"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Result is returned for every processed delivery. Business faults are reported
// here instead of as HTTP errors so the provider does not start retrying.
type Result struct {
	Processed bool   `json:"processed"`
	Message   string `json:"message"`
}

// Processed builds a successful Result.
func Processed(msg string) Result { return Result{Processed: true, Message: msg} }

// Skipped builds a Result for a delivery that was accepted but not acted on.
func Skipped(msg string) Result { return Result{Processed: false, Message: msg} }

// CommitEvent is a single commit from a push, normalized for propagation.
type CommitEvent struct {
	SHA              string    `json:"sha"`
	Message          string    `json:"message"`
	BranchName       string    `json:"branch_name"`
	IsFromMainBranch bool      `json:"is_from_main_branch"`
	AuthorName       string    `json:"author_name"`
	AuthorEmail      string    `json:"author_email"`
	AuthorUsername   string    `json:"author_username,omitempty"`
	URL              string    `json:"url"`
	Timestamp        time.Time `json:"timestamp"`
	Added            []string  `json:"added"`
	Removed          []string  `json:"removed"`
	Modified         []string  `json:"modified"`
}

// PRStatus is the lifecycle state of a pull request as seen by propagation.
type PRStatus string

const (
	PRStatusOpen   PRStatus = "OPEN"
	PRStatusClosed PRStatus = "CLOSED"
	PRStatusDraft  PRStatus = "DRAFT"
)

// PullRequestEvent is a pull request snapshot, normalized for propagation.
type PullRequestEvent struct {
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         PRStatus   `json:"status"`
	Merged         bool       `json:"merged"`
	HeadBranch     string     `json:"head_branch"`
	HeadSHA        string     `json:"head_sha"`
	BaseBranch     string     `json:"base_branch"`
	AuthorLogin    string     `json:"author_login"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	Additions      int        `json:"additions"`
	Deletions      int        `json:"deletions"`
	ChangedFiles   int        `json:"changed_files"`
	Commits        int        `json:"commits"`
	ReviewComments int        `json:"review_comments"`
	Comments       int        `json:"comments"`
}

// Text is the free text scanned for task references.
func (p *PullRequestEvent) Text() string {
	if p.Description == "" {
		return p.Title
	}
	return p.Title + "\n" + p.Description
}

// PRStatusFrom derives the propagation status from GitHub's state and draft flag.
func PRStatusFrom(state string, draft bool) PRStatus {
	if strings.EqualFold(state, "closed") {
		return PRStatusClosed
	}
	if draft {
		return PRStatusDraft
	}
	return PRStatusOpen
}

// BranchFromRef strips the refs/heads/ prefix: refs/heads/feature/foo -> feature/foo.
func BranchFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
