// Package watch abstracts the OS filesystem notification capability behind a
// small interface so the dispatch and debounce logic can be driven by a real
// kernel watcher or by synthetic events in tests.
package watch

import (
	"time"

	"filecron/internal/rule"
)

// Handle identifies one active watch on one path. Opaque to callers.
type Handle int

// Notification is a single raw filesystem notification. Kind may carry more
// than one bit when the backend cannot distinguish the underlying operations;
// consumers filter against their requested masks.
type Notification struct {
	Handle    Handle
	Kind      rule.EventKind
	Name      string
	Timestamp time.Time
}

// Notifier is the OS notification capability. Register issues a watch for the
// union mask on one path; Events is the single stream all notifications are
// delivered on, in kernel order.
type Notifier interface {
	Register(path string, mask rule.EventKind) (Handle, error)
	Unregister(handle Handle) error
	Events() <-chan Notification
	Errors() <-chan error
	Close() error
}
