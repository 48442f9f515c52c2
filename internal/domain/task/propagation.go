package task

import (
	"time"

	"github.com/Strob0t/TaskForge/internal/domain/link"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
)

// Transition is the outcome of evaluating one GitHub signal against a task.
// The zero value means "no change".
type Transition struct {
	From     Status
	To       Status
	Complete bool // stamp completion time and set progress to 100
}

// Changed reports whether the transition moves the task.
func (t Transition) Changed() bool {
	return t.To != "" && t.To != t.From
}

// Apply mutates tk according to t and returns the audit record. The second
// result is false when t is not a change.
func (t Transition) Apply(tk *Task, now time.Time, source string) (StatusChange, bool) {
	if !t.Changed() {
		return StatusChange{}, false
	}
	tk.Status = t.To
	tk.UpdatedAt = now
	if t.Complete {
		completed := now
		tk.CompletedAt = &completed
		tk.Progress = 100
	}
	return StatusChange{
		TaskID:    tk.ID,
		OldStatus: t.From,
		NewStatus: t.To,
		Actor:     tk.CreatedBy,
		Source:    source,
		CreatedAt: now,
	}, true
}

func to(from, next Status, complete bool) Transition {
	return Transition{From: from, To: next, Complete: complete}
}

// FromCommit evaluates a commit that references a task. Only commits that landed
// on the main branch move tasks.
func FromCommit(current Status, lt link.Type, c *webhook.CommitEvent) Transition {
	if current == StatusCancelled || !c.IsFromMainBranch {
		return Transition{}
	}
	switch {
	case lt.IsClosing() && current != StatusDone:
		return to(current, StatusDone, true)
	case lt == link.TypeReference && current == StatusTodo:
		return to(current, StatusInProgress, false)
	}
	return Transition{}
}

// FromPullRequest evaluates a pull request that references a task.
//
//	DRAFT                     TODO          -> IN_PROGRESS
//	OPEN                      not REVIEW/DONE -> REVIEW
//	CLOSED merged, closing    not DONE      -> DONE
//	CLOSED unmerged           REVIEW        -> IN_PROGRESS
func FromPullRequest(current Status, lt link.Type, pr *webhook.PullRequestEvent) Transition {
	if current == StatusCancelled {
		return Transition{}
	}
	switch pr.Status {
	case webhook.PRStatusDraft:
		if current == StatusTodo {
			return to(current, StatusInProgress, false)
		}
	case webhook.PRStatusOpen:
		if current != StatusReview && current != StatusDone {
			return to(current, StatusReview, false)
		}
	case webhook.PRStatusClosed:
		if pr.Merged {
			if lt.IsClosing() && current != StatusDone {
				return to(current, StatusDone, true)
			}
			return Transition{}
		}
		if current == StatusReview {
			return to(current, StatusInProgress, false)
		}
	}
	return Transition{}
}
