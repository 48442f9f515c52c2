package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/reference"
	"github.com/Strob0t/TaskForge/internal/domain/task"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
)

func TestPropagator_RetriesOnConflict(t *testing.T) {
	store := newMockStore()
	store.addTask("p", task.Task{ID: "1", Status: task.StatusTodo})
	store.conflictsLeft = 1
	p := NewStatusPropagator(store, nil)

	c := &webhook.CommitEvent{SHA: "s1", IsFromMainBranch: true}
	if err := p.ApplyCommit(context.Background(), "p", c, reference.Extract("closes #1")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tk := store.task("p", "1"); tk.Status != task.StatusDone {
		t.Fatalf("status = %s, want DONE", tk.Status)
	}
}

func TestPropagator_GivesUpAfterRepeatedConflicts(t *testing.T) {
	store := newMockStore()
	store.addTask("p", task.Task{ID: "1", Status: task.StatusTodo})
	store.conflictsLeft = maxSaveAttempts
	p := NewStatusPropagator(store, nil)

	c := &webhook.CommitEvent{SHA: "s1", IsFromMainBranch: true}
	err := p.ApplyCommit(context.Background(), "p", c, reference.Extract("closes #1"))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestPropagator_MissingTaskSkipped(t *testing.T) {
	store := newMockStore()
	store.addTask("p", task.Task{ID: "2", Status: task.StatusTodo})
	p := NewStatusPropagator(store, nil)

	c := &webhook.CommitEvent{SHA: "s1", IsFromMainBranch: true}
	if err := p.ApplyCommit(context.Background(), "p", c, reference.Extract("fixes #404 and fixes #2")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if store.linkCount() != 1 {
		t.Errorf("links = %d, want 1", store.linkCount())
	}
	if tk := store.task("p", "2"); tk.Status != task.StatusDone {
		t.Errorf("status = %s, want DONE", tk.Status)
	}
}

func TestPropagator_TwoReferencesOneLink(t *testing.T) {
	store := newMockStore()
	store.addTask("p", task.Task{ID: "42", Status: task.StatusTodo})
	hub := &mockBroadcaster{}
	p := NewStatusPropagator(store, hub)

	refs := reference.Extract("#42 and TASK-42")
	if len(refs) != 2 {
		t.Fatalf("refs = %d, want 2", len(refs))
	}
	c := &webhook.CommitEvent{SHA: "s1", IsFromMainBranch: true}
	if err := p.ApplyCommit(context.Background(), "p", c, refs); err != nil {
		t.Fatal(err)
	}
	if store.linkCount() != 1 {
		t.Errorf("links = %d, want 1", store.linkCount())
	}
	if tk := store.task("p", "42"); tk.Status != task.StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", tk.Status)
	}
	if len(store.changes) != 1 {
		t.Errorf("changes = %d, want 1", len(store.changes))
	}
}

func TestPropagator_StoreErrorsJoined(t *testing.T) {
	store := newMockStore()
	store.addTask("p", task.Task{ID: "1", Status: task.StatusTodo})
	store.addTask("p", task.Task{ID: "2", Status: task.StatusTodo})
	store.saveStatusErr = errors.New("db down")
	p := NewStatusPropagator(store, nil)

	pr := &webhook.PullRequestEvent{Number: 5, Status: webhook.PRStatusOpen}
	err := p.ApplyPullRequest(context.Background(), "p", pr, reference.Extract("#1 #2"))
	if err == nil {
		t.Fatal("expected error")
	}
	if store.linkCount() != 2 {
		t.Errorf("links = %d, want 2 (second reference must still be tried)", store.linkCount())
	}
}
