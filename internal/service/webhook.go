// Package service implements the GitHub integration use cases on top of the ports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/TaskForge/internal/adapter/otel"
	"github.com/Strob0t/TaskForge/internal/config"
	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/connection"
	"github.com/Strob0t/TaskForge/internal/domain/reference"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
	"github.com/Strob0t/TaskForge/internal/logger"
	"github.com/Strob0t/TaskForge/internal/port/database"
	"github.com/Strob0t/TaskForge/internal/resilience"
)

const healthWriteTimeout = 5 * time.Second

// WebhookService processes GitHub webhook deliveries.
//
// A delivery is handled under its delivery lock, inside a bounded worker pool
// and with a processing deadline. The signature is checked against the secret
// of the connection named by the hook URL, or of the repository named in the
// body, before anything else in the body is trusted. Business faults come back as a Result, never as an error, so that
// GitHub does not retry them.
type WebhookService struct {
	store         database.Store
	conns         *ConnectionCache
	lock          *DeliveryLock
	pool          *resilience.Pool
	health        *HealthTracker
	propagator    *StatusPropagator
	timeout       time.Duration
	defaultBranch string
	metrics       *cfotel.Metrics
}

// NewWebhookService creates a WebhookService.
func NewWebhookService(
	store database.Store,
	conns *ConnectionCache,
	lock *DeliveryLock,
	health *HealthTracker,
	propagator *StatusPropagator,
	cfg config.Webhook,
	defaultBranch string,
) *WebhookService {
	return &WebhookService{
		store:         store,
		conns:         conns,
		lock:          lock,
		pool:          resilience.NewPool(cfg.MaxConcurrent),
		health:        health,
		propagator:    propagator,
		timeout:       cfg.ProcessTimeout,
		defaultBranch: defaultBranch,
	}
}

// SetMetrics attaches metric instruments.
func (s *WebhookService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Process handles one delivery. The returned error is non-nil only for an
// invalid signature (wrapping domain.ErrInvalidSignature) or an infrastructure
// failure; everything else is reported through the Result.
func (s *WebhookService) Process(ctx context.Context, d webhook.Delivery) (webhook.Result, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	ctx = logger.WithDeliveryID(ctx, d.ID)
	ctx, span := cfotel.StartWebhookSpan(ctx, d.ID, string(d.Event))
	defer span.End()

	start := time.Now()
	eventAttr := metric.WithAttributes(attribute.String("event", string(d.Event)))
	if s.metrics != nil {
		s.metrics.WebhooksReceived.Add(ctx, 1, eventAttr)
		defer func() {
			s.metrics.WebhookDuration.Record(ctx, time.Since(start).Seconds(), eventAttr)
		}()
	}

	var res webhook.Result
	err := s.lock.WithLock(ctx, d.ID, func(ctx context.Context) error {
		return s.pool.Run(ctx, func(ctx context.Context) error {
			if s.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}
			var err error
			res, err = s.handle(ctx, d)
			return err
		})
	})

	switch {
	case err == nil:
		slog.InfoContext(ctx, "webhook handled", "event", d.Event, "processed", res.Processed, "message", res.Message)
		return res, nil
	case errors.Is(err, domain.ErrDuplicateDelivery):
		if s.metrics != nil {
			s.metrics.WebhookDuplicates.Add(ctx, 1, eventAttr)
		}
		slog.InfoContext(ctx, "duplicate delivery ignored", "event", d.Event)
		return webhook.Skipped("duplicate delivery"), nil
	case errors.Is(err, domain.ErrInvalidSignature):
		span.SetStatus(codes.Error, "invalid signature")
		return webhook.Result{}, err
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		slog.WarnContext(ctx, "webhook processing timed out", "event", d.Event, "timeout", s.timeout)
		return webhook.Skipped("processing timed out"), nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return webhook.Result{}, err
	}
}

func (s *WebhookService) handle(ctx context.Context, d webhook.Delivery) (webhook.Result, error) {
	switch d.Event {
	case webhook.EventPush, webhook.EventPullRequest, webhook.EventPullRequestReview, webhook.EventPing:
	default:
		return webhook.Skipped("ignored event"), nil
	}
	if d.Signature == "" {
		s.rejected(ctx, "missing signature")
		return webhook.Result{}, fmt.Errorf("missing signature: %w", domain.ErrInvalidSignature)
	}

	conn, skip, err := s.connectionFor(ctx, d)
	if err != nil {
		return webhook.Result{}, err
	}
	if skip != "" {
		return webhook.Skipped(skip), nil
	}

	if !webhook.VerifySignature(d.Body, d.Signature, conn.WebhookSecret) {
		s.rejected(ctx, "signature mismatch")
		slog.WarnContext(ctx, "webhook signature mismatch", "repository", conn.RepositoryFullName, "connection_id", conn.ID)
		return webhook.Result{}, fmt.Errorf("connection %s: %w", conn.ID, domain.ErrInvalidSignature)
	}
	if d.ConnectionID != "" {
		if repo, err := webhook.RepositoryName(d.Body); err == nil && !strings.EqualFold(repo, conn.RepositoryFullName) {
			slog.WarnContext(ctx, "webhook repository does not match connection",
				"repository", repo, "connection_id", conn.ID, "connection_repository", conn.RepositoryFullName)
			return webhook.Skipped("repository mismatch"), nil
		}
	}
	if !conn.IsActive {
		return webhook.Skipped("connection inactive"), nil
	}
	if !conn.WebhookActive {
		return webhook.Skipped("webhook inactive"), nil
	}

	res, problems, err := s.dispatch(ctx, conn, d)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	switch {
	case errors.Is(err, domain.ErrParse):
		s.recordError(ctx, conn, err.Error())
		return webhook.Skipped("malformed payload"), nil
	case err != nil:
		s.recordError(ctx, conn, err.Error())
		return webhook.Result{}, err
	case len(problems) > 0:
		s.recordError(ctx, conn, errors.Join(problems...).Error())
	default:
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthWriteTimeout)
		defer cancel()
		if err := s.health.RecordSuccess(hctx, conn); err != nil {
			slog.WarnContext(ctx, "record webhook success", "error", err)
		}
	}
	return res, nil
}

// connectionFor resolves the connection of d: the one its hook URL names, else
// the one of the repository in the body. A non-empty skip reason means the
// delivery cannot be attributed to any connection.
func (s *WebhookService) connectionFor(ctx context.Context, d webhook.Delivery) (conn *connection.Connection, skip string, err error) {
	if d.ConnectionID != "" {
		conn, err = s.conns.ByID(ctx, d.ConnectionID)
		if errors.Is(err, domain.ErrNotFound) {
			slog.InfoContext(ctx, "webhook for unknown connection", "connection_id", d.ConnectionID)
			return nil, "unknown connection", nil
		}
		if err != nil {
			return nil, "", fmt.Errorf("get connection %s: %w", d.ConnectionID, err)
		}
		return conn, "", nil
	}

	repo, err := webhook.RepositoryName(d.Body)
	if err != nil {
		slog.WarnContext(ctx, "webhook without repository", "error", err)
		return nil, "malformed payload", nil
	}
	conn, err = s.conns.ByRepository(ctx, repo)
	if errors.Is(err, domain.ErrNotFound) {
		slog.InfoContext(ctx, "webhook for unknown repository", "repository", repo)
		return nil, "unknown repository", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("find connection for %s: %w", repo, err)
	}
	return conn, "", nil
}

func (s *WebhookService) dispatch(ctx context.Context, conn *connection.Connection, d webhook.Delivery) (webhook.Result, []error, error) {
	switch d.Event {
	case webhook.EventPush:
		return s.handlePush(ctx, conn, d.Body)
	case webhook.EventPullRequest:
		return s.handlePullRequest(ctx, conn, d.Body)
	case webhook.EventPullRequestReview:
		res, err := s.handleReview(ctx, conn, d.Body)
		return res, nil, err
	default:
		return webhook.Processed("pong"), nil, nil
	}
}

func (s *WebhookService) handlePush(ctx context.Context, conn *connection.Connection, body []byte) (webhook.Result, []error, error) {
	p, err := webhook.ParsePush(body)
	if err != nil {
		return webhook.Result{}, nil, err
	}
	if !strings.HasPrefix(p.Ref, "refs/heads/") {
		return webhook.Skipped("not a branch push"), nil, nil
	}

	branch := webhook.BranchFromRef(p.Ref)
	mainBranch := conn.DefaultBranch
	if mainBranch == "" {
		mainBranch = p.Repository.DefaultBranch
	}
	if mainBranch == "" {
		mainBranch = s.defaultBranch
	}

	var problems []error
	for i := range p.Commits {
		if err := ctx.Err(); err != nil {
			return webhook.Result{}, problems, err
		}
		if err := s.handleCommit(ctx, conn.ProjectID, &p.Commits[i], branch, mainBranch); err != nil {
			slog.WarnContext(ctx, "commit processing failed", "sha", p.Commits[i].ID, "error", err)
			problems = append(problems, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return webhook.Result{}, problems, err
	}

	msg := fmt.Sprintf("processed %d commits", len(p.Commits)-len(problems))
	if len(problems) > 0 {
		msg += fmt.Sprintf(", %d failed", len(problems))
	}
	return webhook.Processed(msg), problems, nil
}

// handleCommit records a commit once and propagates its references. A commit
// that is already known is propagated again: links are unique and transitions
// that already happened are no-ops, and the same SHA may now be on the main
// branch after a fast-forward.
func (s *WebhookService) handleCommit(ctx context.Context, projectID string, pc *webhook.PushCommit, branch, mainBranch string) error {
	ctx, span := cfotel.StartCommitSpan(ctx, projectID, pc.ID)
	defer span.End()

	c, err := pc.Commit(branch, mainBranch)
	if err != nil {
		return err
	}

	exists, err := s.store.CommitExistsBySHA(ctx, projectID, c.SHA)
	if err != nil {
		return fmt.Errorf("commit %s: %w", c.SHA, err)
	}
	if !exists {
		if err := s.store.CreateCommit(ctx, projectID, &c); err != nil {
			return fmt.Errorf("create commit %s: %w", c.SHA, err)
		}
	}

	if err := s.propagator.ApplyCommit(ctx, projectID, &c, reference.Extract(c.Message)); err != nil {
		return fmt.Errorf("commit %s: %w", c.SHA, err)
	}
	return nil
}

func (s *WebhookService) handlePullRequest(ctx context.Context, conn *connection.Connection, body []byte) (webhook.Result, []error, error) {
	p, err := webhook.ParsePullRequest(body)
	if err != nil {
		return webhook.Result{}, nil, err
	}
	pr := p.PullRequest.Event()
	if err := s.store.UpsertPullRequest(ctx, conn.ProjectID, &pr); err != nil {
		return webhook.Result{}, nil, fmt.Errorf("upsert pull request #%d: %w", pr.Number, err)
	}

	var problems []error
	if err := s.propagator.ApplyPullRequest(ctx, conn.ProjectID, &pr, reference.Extract(pr.Text())); err != nil {
		slog.WarnContext(ctx, "pull request propagation failed", "number", pr.Number, "error", err)
		problems = append(problems, fmt.Errorf("pull request #%d: %w", pr.Number, err))
	}
	return webhook.Processed(fmt.Sprintf("pull request #%d %s", pr.Number, p.Action)), problems, nil
}

func (s *WebhookService) handleReview(ctx context.Context, conn *connection.Connection, body []byte) (webhook.Result, error) {
	p, err := webhook.ParsePullRequest(body)
	if err != nil {
		return webhook.Result{}, err
	}
	number := p.PullRequest.Number

	existing, err := s.store.FindPullRequestByNumber(ctx, conn.ProjectID, number)
	if errors.Is(err, domain.ErrNotFound) {
		return webhook.Skipped("unknown pull request"), nil
	}
	if err != nil {
		return webhook.Result{}, fmt.Errorf("find pull request #%d: %w", number, err)
	}

	count := p.PullRequest.Event().ReviewComments
	if count == 0 && p.Action == "submitted" {
		count = existing.ReviewComments + 1
	}
	if err := s.store.UpdatePullRequestReviewComments(ctx, conn.ProjectID, number, count); err != nil {
		return webhook.Result{}, fmt.Errorf("update pull request #%d: %w", number, err)
	}
	return webhook.Processed(fmt.Sprintf("review on pull request #%d", number)), nil
}

func (s *WebhookService) rejected(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.WebhooksRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (s *WebhookService) recordError(ctx context.Context, conn *connection.Connection, msg string) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthWriteTimeout)
	defer cancel()
	if err := s.health.RecordError(hctx, conn, msg); err != nil {
		slog.WarnContext(ctx, "record webhook error", "error", err)
	}
}
