package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/TaskForge/internal/domain"
)

// Repository is the repository block shared by every GitHub event payload.
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// PushPayload is the subset of a GitHub push payload the core reads.
type PushPayload struct {
	Ref        string       `json:"ref"`
	Repository Repository   `json:"repository"`
	Commits    []PushCommit `json:"commits"`
}

// PushCommit is one entry of PushPayload.Commits.
type PushCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Author  struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Username string `json:"username,omitempty"`
	} `json:"author"`
	Committer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"committer"`
	Timestamp string   `json:"timestamp"`
	URL       string   `json:"url"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Modified  []string `json:"modified"`
}

// PullRequestPayload covers both pull_request and pull_request_review events.
type PullRequestPayload struct {
	Action      string      `json:"action"`
	Repository  Repository  `json:"repository"`
	PullRequest PullRequest `json:"pull_request"`
}

// PullRequest is the pull_request block of a payload.
type PullRequest struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   *string `json:"body"`
	State  string  `json:"state"`
	Draft  bool    `json:"draft"`
	Merged bool    `json:"merged"`
	User   struct {
		Login string  `json:"login"`
		Name  *string `json:"name"`
	} `json:"user"`
	Head struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	MergedAt       *time.Time `json:"merged_at"`
	ClosedAt       *time.Time `json:"closed_at"`
	Additions      *int       `json:"additions"`
	Deletions      *int       `json:"deletions"`
	ChangedFiles   *int       `json:"changed_files"`
	Commits        *int       `json:"commits"`
	ReviewComments *int       `json:"review_comments"`
	Comments       *int       `json:"comments"`
}

// RepositoryName reads only repository.full_name, which is needed to pick the
// verification secret before anything else in the body is trusted.
func RepositoryName(body []byte) (string, error) {
	var raw struct {
		Repository Repository `json:"repository"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("read repository: %w: %w", domain.ErrParse, err)
	}
	if raw.Repository.FullName == "" {
		return "", fmt.Errorf("repository.full_name missing: %w", domain.ErrParse)
	}
	return raw.Repository.FullName, nil
}

// ParsePush decodes a push payload.
func ParsePush(body []byte) (*PushPayload, error) {
	var p PushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse github push: %w: %w", domain.ErrParse, err)
	}
	if p.Ref == "" {
		return nil, fmt.Errorf("push ref missing: %w", domain.ErrParse)
	}
	return &p, nil
}

// ParsePullRequest decodes a pull_request or pull_request_review payload.
func ParsePullRequest(body []byte) (*PullRequestPayload, error) {
	var p PullRequestPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse github pull_request: %w: %w", domain.ErrParse, err)
	}
	if p.PullRequest.Number <= 0 {
		return nil, fmt.Errorf("pull_request.number missing: %w", domain.ErrParse)
	}
	return &p, nil
}

// Commit normalizes one pushed commit. mainBranch is the connection's default branch.
func (c *PushCommit) Commit(branch, mainBranch string) (CommitEvent, error) {
	if c.ID == "" {
		return CommitEvent{}, fmt.Errorf("commit id missing: %w", domain.ErrParse)
	}
	ev := CommitEvent{
		SHA:              c.ID,
		Message:          c.Message,
		BranchName:       branch,
		IsFromMainBranch: branch != "" && branch == mainBranch,
		AuthorName:       c.Author.Name,
		AuthorEmail:      c.Author.Email,
		AuthorUsername:   c.Author.Username,
		URL:              c.URL,
		Added:            c.Added,
		Removed:          c.Removed,
		Modified:         c.Modified,
	}
	if c.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, c.Timestamp)
		if err != nil {
			return CommitEvent{}, fmt.Errorf("commit %s timestamp: %w: %w", c.ID, domain.ErrParse, err)
		}
		ev.Timestamp = ts
	}
	return ev, nil
}

// Event normalizes the pull request block.
func (p *PullRequest) Event() PullRequestEvent {
	ev := PullRequestEvent{
		Number:      p.Number,
		Title:       p.Title,
		Status:      PRStatusFrom(p.State, p.Draft),
		Merged:      p.Merged || p.MergedAt != nil,
		HeadBranch:  p.Head.Ref,
		HeadSHA:     p.Head.SHA,
		BaseBranch:  p.Base.Ref,
		AuthorLogin: p.User.Login,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		MergedAt:    p.MergedAt,
		ClosedAt:    p.ClosedAt,
	}
	if p.Body != nil {
		ev.Description = *p.Body
	}
	ev.Additions = intOrZero(p.Additions)
	ev.Deletions = intOrZero(p.Deletions)
	ev.ChangedFiles = intOrZero(p.ChangedFiles)
	ev.Commits = intOrZero(p.Commits)
	ev.ReviewComments = intOrZero(p.ReviewComments)
	ev.Comments = intOrZero(p.Comments)
	return ev
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
