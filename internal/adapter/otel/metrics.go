package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskforge"

// Metrics holds all TaskForge metric instruments.
type Metrics struct {
	WebhooksReceived  metric.Int64Counter
	WebhooksRejected  metric.Int64Counter
	WebhookDuplicates metric.Int64Counter
	WebhookDuration   metric.Float64Histogram
	TaskLinks         metric.Int64Counter
	StatusTransitions metric.Int64Counter
	OAuthCallbacks    metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.WebhooksReceived, err = meter.Int64Counter("taskforge.webhooks.received",
		metric.WithDescription("Number of webhook deliveries received"))
	if err != nil {
		return nil, err
	}

	m.WebhooksRejected, err = meter.Int64Counter("taskforge.webhooks.rejected",
		metric.WithDescription("Number of webhook deliveries rejected by signature verification"))
	if err != nil {
		return nil, err
	}

	m.WebhookDuplicates, err = meter.Int64Counter("taskforge.webhooks.duplicates",
		metric.WithDescription("Number of deliveries dropped because the same delivery was in flight"))
	if err != nil {
		return nil, err
	}

	m.WebhookDuration, err = meter.Float64Histogram("taskforge.webhook.duration_seconds",
		metric.WithDescription("Webhook processing duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TaskLinks, err = meter.Int64Counter("taskforge.task_links.created",
		metric.WithDescription("Number of task links created"))
	if err != nil {
		return nil, err
	}

	m.StatusTransitions, err = meter.Int64Counter("taskforge.task.status_transitions",
		metric.WithDescription("Number of automatic task status transitions"))
	if err != nil {
		return nil, err
	}

	m.OAuthCallbacks, err = meter.Int64Counter("taskforge.oauth.callbacks",
		metric.WithDescription("Number of OAuth callbacks by outcome"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
