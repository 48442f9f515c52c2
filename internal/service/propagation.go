package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/TaskForge/internal/adapter/otel"
	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/link"
	"github.com/Strob0t/TaskForge/internal/domain/reference"
	"github.com/Strob0t/TaskForge/internal/domain/task"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
	"github.com/Strob0t/TaskForge/internal/port/broadcast"
	"github.com/Strob0t/TaskForge/internal/port/database"
	"github.com/Strob0t/TaskForge/internal/port/messagequeue"
)

// maxSaveAttempts bounds the reload-and-retry loop when a task was modified
// concurrently.
const maxSaveAttempts = 3

// StatusPropagator turns task references found in commits and pull requests
// into task links and automatic status transitions.
//
// References are handled one by one in extraction order. A task mentioned by
// two references ("#42" and "TASK-42") gets one link and is evaluated twice.
type StatusPropagator struct {
	store   database.Store
	hub     broadcast.Broadcaster
	metrics *cfotel.Metrics
	now     func() time.Time
}

// NewStatusPropagator creates a StatusPropagator. hub may be nil.
func NewStatusPropagator(store database.Store, hub broadcast.Broadcaster) *StatusPropagator {
	return &StatusPropagator{store: store, hub: hub, now: time.Now}
}

// SetMetrics attaches metric instruments.
func (p *StatusPropagator) SetMetrics(m *cfotel.Metrics) { p.metrics = m }

// ApplyCommit links and transitions every task referenced by commit c.
// Missing tasks are skipped; other failures are joined and returned after all
// references have been tried.
func (p *StatusPropagator) ApplyCommit(ctx context.Context, projectID string, c *webhook.CommitEvent, refs []reference.Reference) error {
	var errs []error
	for _, ref := range refs {
		err := p.apply(ctx, projectID, ref, target{
			source:   link.SourceCommit,
			sourceID: c.SHA,
			label:    "commit:" + c.SHA,
			evaluate: func(s task.Status) task.Transition { return task.FromCommit(s, ref.LinkType, c) },
			linked: func(tk *task.Task) {
				p.broadcast(ctx, broadcast.EventCommitLinked, messagequeue.CommitLinkedPayload{
					ProjectID:  projectID,
					TaskID:     tk.ID,
					SHA:        c.SHA,
					BranchName: c.BranchName,
					LinkType:   string(ref.LinkType),
				})
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", ref.TaskID, err))
		}
	}
	return errors.Join(errs...)
}

// ApplyPullRequest links and transitions every task referenced by pr.
func (p *StatusPropagator) ApplyPullRequest(ctx context.Context, projectID string, pr *webhook.PullRequestEvent, refs []reference.Reference) error {
	number := strconv.Itoa(pr.Number)
	var errs []error
	for _, ref := range refs {
		err := p.apply(ctx, projectID, ref, target{
			source:   link.SourcePullRequest,
			sourceID: number,
			label:    "pr:" + number,
			evaluate: func(s task.Status) task.Transition { return task.FromPullRequest(s, ref.LinkType, pr) },
			linked: func(tk *task.Task) {
				p.broadcast(ctx, broadcast.EventPRLinked, messagequeue.PRLinkedPayload{
					ProjectID: projectID,
					TaskID:    tk.ID,
					Number:    pr.Number,
					Status:    string(pr.Status),
					Merged:    pr.Merged,
					LinkType:  string(ref.LinkType),
				})
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", ref.TaskID, err))
		}
	}
	return errors.Join(errs...)
}

type target struct {
	source   link.SourceType
	sourceID string
	label    string
	evaluate func(task.Status) task.Transition
	linked   func(*task.Task)
}

func (p *StatusPropagator) apply(ctx context.Context, projectID string, ref reference.Reference, t target) error {
	tk, err := p.store.FindTaskByID(ctx, projectID, ref.TaskID)
	if errors.Is(err, domain.ErrNotFound) {
		slog.DebugContext(ctx, "referenced task not found", "project_id", projectID, "task_id", ref.TaskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find task: %w", err)
	}

	created, err := p.store.RecordTaskLink(ctx, projectID, link.New(t.source, t.sourceID, tk.ID, ref.LinkType, p.now().UTC()))
	if err != nil {
		return fmt.Errorf("record link: %w", err)
	}
	if created {
		if p.metrics != nil {
			p.metrics.TaskLinks.Add(ctx, 1, metric.WithAttributes(
				attribute.String("source", string(t.source)),
				attribute.String("link_type", string(ref.LinkType)),
			))
		}
		t.linked(tk)
	}

	for attempt := 1; ; attempt++ {
		change, ok := t.evaluate(tk.Status).Apply(tk, p.now().UTC(), t.label)
		if !ok {
			return nil
		}
		err := p.store.SaveTaskStatus(ctx, tk, change)
		if err == nil {
			p.transitioned(ctx, projectID, change)
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxSaveAttempts {
			return fmt.Errorf("save task status: %w", err)
		}
		if tk, err = p.store.FindTaskByID(ctx, projectID, ref.TaskID); err != nil {
			return fmt.Errorf("reload task: %w", err)
		}
	}
}

func (p *StatusPropagator) transitioned(ctx context.Context, projectID string, change task.StatusChange) {
	slog.InfoContext(ctx, "task status changed",
		"project_id", projectID,
		"task_id", change.TaskID,
		"from", change.OldStatus,
		"to", change.NewStatus,
		"source", change.Source,
	)
	if p.metrics != nil {
		p.metrics.StatusTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("to", string(change.NewStatus)),
		))
	}
	p.broadcast(ctx, broadcast.EventTaskStatusChanged, messagequeue.TaskStatusChangedPayload{
		ProjectID: projectID,
		TaskID:    change.TaskID,
		OldStatus: string(change.OldStatus),
		NewStatus: string(change.NewStatus),
		Actor:     change.Actor,
		Source:    change.Source,
		ChangedAt: change.CreatedAt,
	})
}

func (p *StatusPropagator) broadcast(ctx context.Context, eventType string, payload any) {
	if p.hub != nil {
		p.hub.BroadcastEvent(ctx, eventType, payload)
	}
}
