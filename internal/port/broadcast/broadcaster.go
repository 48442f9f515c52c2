// Package broadcast defines the port for publishing activity events that
// downstream consumers fan out to connected clients.
package broadcast

import "context"

// Activity event types.
const (
	EventCommitLinked      = "github.commit.linked"
	EventPRLinked          = "github.pr.linked"
	EventTaskStatusChanged = "task.status.changed"
)

// Broadcaster publishes activity events. Delivery is best effort.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
