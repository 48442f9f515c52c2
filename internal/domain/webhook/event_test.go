package webhook

import (
	"errors"
	"testing"

	"github.com/Strob0t/TaskForge/internal/domain"
)

func TestBranchFromRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"refs/heads/main", "main"},
		{"refs/heads/feature/x", "feature/x"},
		{"main", "main"},
		{"refs/tags/v1", "refs/tags/v1"},
	}
	for _, tt := range tests {
		got := BranchFromRef(tt.ref)
		if got != tt.want {
			t.Errorf("BranchFromRef(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestPRStatusFrom(t *testing.T) {
	tests := []struct {
		state string
		draft bool
		want  PRStatus
	}{
		{"open", false, PRStatusOpen},
		{"open", true, PRStatusDraft},
		{"closed", false, PRStatusClosed},
		{"closed", true, PRStatusClosed},
	}
	for _, tt := range tests {
		if got := PRStatusFrom(tt.state, tt.draft); got != tt.want {
			t.Errorf("PRStatusFrom(%q, %v) = %s, want %s", tt.state, tt.draft, got, tt.want)
		}
	}
}

func TestParsePush(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/main",
		"repository": {"full_name": "acme/app"},
		"commits": [{
			"id": "abc123",
			"message": "Fixes #5",
			"author": {"name": "A", "email": "a@x.com"},
			"committer": {"name": "A", "email": "a@x.com"},
			"timestamp": "2024-01-01T00:00:00Z",
			"url": "https://x",
			"added": ["f.txt"], "removed": [], "modified": []
		}]
	}`)

	p, err := ParsePush(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(p.Commits))
	}

	ev, err := p.Commits[0].Commit(BranchFromRef(p.Ref), "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.IsFromMainBranch {
		t.Fatal("expected commit on main to be from main branch")
	}
	if ev.Timestamp.Year() != 2024 {
		t.Fatalf("expected 2024 timestamp, got %v", ev.Timestamp)
	}

	ev, err = p.Commits[0].Commit("feature/x", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.IsFromMainBranch {
		t.Fatal("expected feature branch commit not to be from main branch")
	}
}

func TestParsePush_Malformed(t *testing.T) {
	for _, body := range []string{`{`, `{"commits":[]}`} {
		_, err := ParsePush([]byte(body))
		if !errors.Is(err, domain.ErrParse) {
			t.Errorf("ParsePush(%s) err = %v, want ErrParse", body, err)
		}
	}
}

func TestCommit_BadTimestamp(t *testing.T) {
	c := PushCommit{ID: "abc", Timestamp: "yesterday"}
	if _, err := c.Commit("main", "main"); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParsePullRequest(t *testing.T) {
	body := []byte(`{
		"action": "closed",
		"repository": {"full_name": "acme/app"},
		"pull_request": {
			"number": 42,
			"title": "Add feature",
			"body": "Closes #7",
			"state": "closed",
			"draft": false,
			"merged": true,
			"user": {"login": "octo"},
			"head": {"ref": "feature/x", "sha": "abc"},
			"base": {"ref": "main"},
			"created_at": "2024-01-01T00:00:00Z",
			"updated_at": "2024-01-02T00:00:00Z",
			"merged_at": "2024-01-02T00:00:00Z",
			"review_comments": 3
		}
	}`)

	p, err := ParsePullRequest(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := p.PullRequest.Event()
	if ev.Status != PRStatusClosed || !ev.Merged {
		t.Fatalf("expected closed+merged, got %s merged=%v", ev.Status, ev.Merged)
	}
	if ev.Text() != "Add feature\nCloses #7" {
		t.Fatalf("unexpected text %q", ev.Text())
	}
	if ev.ReviewComments != 3 {
		t.Fatalf("expected 3 review comments, got %d", ev.ReviewComments)
	}
}

func TestRepositoryName(t *testing.T) {
	name, err := RepositoryName([]byte(`{"repository":{"full_name":"acme/app"}}`))
	if err != nil || name != "acme/app" {
		t.Fatalf("RepositoryName() = %q, %v", name, err)
	}
	if _, err := RepositoryName([]byte(`{}`)); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}
