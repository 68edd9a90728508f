package engine

import (
	"context"
	"path/filepath"

	"filecron/internal/logging"
	"filecron/internal/metrics"
	"filecron/internal/rule"
	"filecron/internal/watch"
)

// Executor launches a rule's command for a triggering path without blocking.
type Executor interface {
	Execute(r *rule.Rule, triggeringPath string) error
}

// Dispatcher is the sole consumer of the notification stream. Each raw
// notification is resolved against the watch table and routed to immediate
// execution or to the stability tracker, synchronously and in delivery order.
type Dispatcher struct {
	registry *Registry
	tracker  *Tracker
	executor Executor
	logger   *logging.Logger
	metrics  *metrics.Registry
}

func NewDispatcher(registry *Registry, tracker *Tracker, executor Executor, logger *logging.Logger, counters *metrics.Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tracker:  tracker,
		executor: executor,
		logger:   logger,
		metrics:  counters,
	}
}

// Run consumes the notifier's streams until the context is cancelled or the
// event stream closes. The blocking read here is the engine's idle state.
func (dispatcher *Dispatcher) Run(ctx context.Context, notifier watch.Notifier) error {
	if dispatcher == nil || notifier == nil {
		return nil
	}
	events := notifier.Events()
	backendErrors := notifier.Errors()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notification, ok := <-events:
			if !ok {
				return nil
			}
			dispatcher.Dispatch(notification)
		case err, ok := <-backendErrors:
			if !ok {
				backendErrors = nil
				continue
			}
			if dispatcher.logger != nil {
				dispatcher.logger.Warn("notification backend error", map[string]string{
					"filecron.category": "dispatch",
					"error":             err.Error(),
				})
			}
		}
	}
}

// Dispatch routes one notification. A rule without a check interval executes
// immediately; a debounced rule registers the path with the tracker instead.
// Re-notification of an already-tracked path refreshes nothing: the tracker
// already owns the authoritative poll loop for it.
func (dispatcher *Dispatcher) Dispatch(notification watch.Notification) {
	if dispatcher == nil {
		return
	}
	dispatcher.metrics.IncNotifications()

	bindings := dispatcher.registry.Lookup(notification.Handle)
	for _, binding := range bindings {
		if !binding.Mask.Contains(notification.Kind) {
			continue
		}
		if !binding.Rule.MatchesName(notification.Name) {
			continue
		}

		triggeringPath := binding.Path
		if notification.Name != "" {
			triggeringPath = filepath.Join(binding.Path, notification.Name)
		}
		dispatcher.metrics.IncDispatches()

		if binding.Rule.Debounced() {
			dispatcher.tracker.Track(binding.Rule, triggeringPath)
			continue
		}
		if err := dispatcher.executor.Execute(binding.Rule, triggeringPath); err != nil {
			if dispatcher.logger != nil {
				dispatcher.logger.Warn("command spawn failed", map[string]string{
					"filecron.category": "dispatch",
					"path":              triggeringPath,
					"error":             err.Error(),
				})
			}
		}
	}
}
