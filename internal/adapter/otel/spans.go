package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "taskforge"

// StartWebhookSpan starts a span for one webhook delivery.
func StartWebhookSpan(ctx context.Context, deliveryID, event string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook.process",
		trace.WithAttributes(
			attribute.String("github.delivery_id", deliveryID),
			attribute.String("github.event", event),
		),
	)
}

// StartCommitSpan starts a span for a single pushed commit.
func StartCommitSpan(ctx context.Context, projectID, sha string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook.commit",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("git.sha", sha),
		),
	)
}

// StartOAuthCallbackSpan starts a span for the OAuth callback.
func StartOAuthCallbackSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "oauth.callback")
}
