package logger

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	deliveryIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithDeliveryID returns a new context carrying the GitHub delivery ID.
func WithDeliveryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deliveryIDKey, id)
}

// DeliveryID extracts the GitHub delivery ID from the context.
func DeliveryID(ctx context.Context) string {
	id, _ := ctx.Value(deliveryIDKey).(string)
	return id
}

// FromContext returns the default logger with the correlation ids of ctx attached.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	for _, a := range contextAttrs(ctx) {
		l = l.With(a)
	}
	return l
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id := DeliveryID(ctx); id != "" {
		attrs = append(attrs, slog.String("delivery_id", id))
	}
	return attrs
}
