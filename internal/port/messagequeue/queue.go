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

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects published and consumed by AppHub.
const (
	SubjectInstalled   = "installed_apps.installed"
	SubjectUninstalled = "installed_apps.uninstalled"
	SubjectPinned      = "installed_apps.pinned"
	SubjectUsed        = "installed_apps.used"
	SubjectReconciled  = "installed_apps.reconciled"

	// SubjectSubscriptionsChanged is published by whoever edits an account's
	// subscriptions; AppHub consumes it.
	SubjectSubscriptionsChanged = "subscriptions.changed"
)

// StreamSubjects lists the subject patterns the JetStream stream must cover.
var StreamSubjects = []string{"installed_apps.>", "subscriptions.>"}
