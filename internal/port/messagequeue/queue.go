// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject prefix and activity subjects published by TaskForge.
const (
	SubjectPrefix = "taskforge.events"

	SubjectCommitLinked      = SubjectPrefix + ".github.commit.linked"
	SubjectPRLinked          = SubjectPrefix + ".github.pr.linked"
	SubjectTaskStatusChanged = SubjectPrefix + ".task.status.changed"
)

// Subject maps an activity event type to its subject.
func Subject(eventType string) string {
	return SubjectPrefix + "." + eventType
}
