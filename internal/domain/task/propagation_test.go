package task

import (
	"testing"
	"time"

	"github.com/Strob0t/TaskForge/internal/domain/link"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
)

func TestFromCommit(t *testing.T) {
	main := &webhook.CommitEvent{SHA: "a", IsFromMainBranch: true}
	feature := &webhook.CommitEvent{SHA: "b", IsFromMainBranch: false}

	tests := []struct {
		name    string
		current Status
		lt      link.Type
		commit  *webhook.CommitEvent
		want    Status // "" means no change
		done    bool
	}{
		{"closes on main completes", StatusTodo, link.TypeCloses, main, StatusDone, true},
		{"fixes from review", StatusReview, link.TypeFixes, main, StatusDone, true},
		{"resolves from in progress", StatusInProgress, link.TypeResolves, main, StatusDone, true},
		{"closing on done is no-op", StatusDone, link.TypeCloses, main, "", false},
		{"reference starts todo", StatusTodo, link.TypeReference, main, StatusInProgress, false},
		{"reference leaves review alone", StatusReview, link.TypeReference, main, "", false},
		{"feature branch closes ignored", StatusTodo, link.TypeCloses, feature, "", false},
		{"feature branch reference ignored", StatusTodo, link.TypeReference, feature, "", false},
		{"cancelled never exits", StatusCancelled, link.TypeCloses, main, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := FromCommit(tt.current, tt.lt, tt.commit)
			if tt.want == "" {
				if tr.Changed() {
					t.Fatalf("expected no transition, got %s -> %s", tr.From, tr.To)
				}
				return
			}
			if tr.To != tt.want || tr.Complete != tt.done {
				t.Fatalf("got %+v, want to=%s complete=%v", tr, tt.want, tt.done)
			}
		})
	}
}

func TestFromPullRequest(t *testing.T) {
	draft := &webhook.PullRequestEvent{Number: 1, Status: webhook.PRStatusDraft}
	open := &webhook.PullRequestEvent{Number: 1, Status: webhook.PRStatusOpen}
	merged := &webhook.PullRequestEvent{Number: 1, Status: webhook.PRStatusClosed, Merged: true}
	closed := &webhook.PullRequestEvent{Number: 1, Status: webhook.PRStatusClosed}

	tests := []struct {
		name    string
		current Status
		lt      link.Type
		pr      *webhook.PullRequestEvent
		want    Status
		done    bool
	}{
		{"draft starts todo", StatusTodo, link.TypeReference, draft, StatusInProgress, false},
		{"draft leaves in progress", StatusInProgress, link.TypeReference, draft, "", false},
		{"draft leaves review", StatusReview, link.TypeCloses, draft, "", false},
		{"open moves todo to review", StatusTodo, link.TypeReference, open, StatusReview, false},
		{"open moves in progress to review", StatusInProgress, link.TypeCloses, open, StatusReview, false},
		{"open leaves review", StatusReview, link.TypeReference, open, "", false},
		{"open leaves done", StatusDone, link.TypeReference, open, "", false},
		{"merged closing completes review", StatusReview, link.TypeCloses, merged, StatusDone, true},
		{"merged fixes completes todo", StatusTodo, link.TypeFixes, merged, StatusDone, true},
		{"merged reference no change", StatusReview, link.TypeReference, merged, "", false},
		{"merged closing on done no-op", StatusDone, link.TypeCloses, merged, "", false},
		{"unmerged close reverts review", StatusReview, link.TypeCloses, closed, StatusInProgress, false},
		{"unmerged close leaves todo", StatusTodo, link.TypeCloses, closed, "", false},
		{"cancelled ignores open", StatusCancelled, link.TypeReference, open, "", false},
		{"cancelled ignores merge", StatusCancelled, link.TypeCloses, merged, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := FromPullRequest(tt.current, tt.lt, tt.pr)
			if tt.want == "" {
				if tr.Changed() {
					t.Fatalf("expected no transition, got %s -> %s", tr.From, tr.To)
				}
				return
			}
			if tr.To != tt.want || tr.Complete != tt.done {
				t.Fatalf("got %+v, want to=%s complete=%v", tr, tt.want, tt.done)
			}
		})
	}
}

func TestTransitionApply(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := &Task{ID: "5", Status: StatusReview, CreatedBy: "creator-1", Progress: 40}

	change, ok := Transition{From: StatusReview, To: StatusDone, Complete: true}.Apply(tk, now, "pr:3")
	if !ok {
		t.Fatal("expected a change")
	}
	if tk.Status != StatusDone || tk.Progress != 100 {
		t.Fatalf("expected DONE/100, got %s/%d", tk.Status, tk.Progress)
	}
	if tk.CompletedAt == nil || !tk.CompletedAt.Equal(now) {
		t.Fatalf("expected completion stamp %v, got %v", now, tk.CompletedAt)
	}
	if change.Actor != "creator-1" || change.OldStatus != StatusReview || change.NewStatus != StatusDone {
		t.Fatalf("unexpected audit record %+v", change)
	}

	if _, ok := (Transition{}).Apply(tk, now, "x"); ok {
		t.Fatal("zero transition must not apply")
	}
}
