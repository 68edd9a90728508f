// Package engine is the rule-matching and event-dispatch core: it registers
// a minimal set of notifier watches for a rule set, correlates raw
// notifications back to rules, and runs the per-path debounce state machines
// that defer execution until a file's size has settled.
package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"filecron/internal/event"
	"filecron/internal/logging"
	"filecron/internal/metrics"
	"filecron/internal/rule"
	"filecron/internal/watch"
)

// Options wires an Engine. Notifier and Executor are required; the rest
// default to quiet no-op collaborators.
type Options struct {
	Notifier watch.Notifier
	Executor Executor
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	Bus      *event.Bus[event.Event]
}

// Engine owns the watch table and the tracked-file map. Instances are
// independent; nothing here is process-global.
type Engine struct {
	notifier   watch.Notifier
	registry   *Registry
	tracker    *Tracker
	dispatcher *Dispatcher
	logger     *logging.Logger

	mutex sync.Mutex
	rules []*rule.Rule
}

func New(options Options) (*Engine, error) {
	if options.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if options.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if options.Metrics == nil {
		options.Metrics = metrics.Default
	}

	registry := NewRegistry(options.Notifier, options.Logger, options.Metrics, options.Bus)
	tracker := NewTracker(options.Executor, options.Logger, options.Metrics, options.Bus)
	dispatcher := NewDispatcher(registry, tracker, options.Executor, options.Logger, options.Metrics)

	return &Engine{
		notifier:   options.Notifier,
		registry:   registry,
		tracker:    tracker,
		dispatcher: dispatcher,
		logger:     options.Logger,
	}, nil
}

// Register installs the initial rule set.
func (engine *Engine) Register(rules []*rule.Rule) error {
	if engine == nil {
		return errors.New("engine is nil")
	}
	if err := engine.registry.Register(rules); err != nil {
		return err
	}
	engine.mutex.Lock()
	engine.rules = rules
	engine.mutex.Unlock()
	return nil
}

// Reload swaps in a freshly loaded rule set. Rules that are field-equal to a
// live rule keep their identity, so their watches and in-flight tracked files
// survive; everything else is torn down or added.
func (engine *Engine) Reload(rules []*rule.Rule) error {
	if engine == nil {
		return errors.New("engine is nil")
	}

	engine.mutex.Lock()
	previous := engine.rules
	engine.mutex.Unlock()

	merged := make([]*rule.Rule, 0, len(rules))
	keep := make(map[*rule.Rule]struct{}, len(rules))
	for _, next := range rules {
		carried := next
		for _, old := range previous {
			if _, taken := keep[old]; !taken && old.Equal(next) {
				carried = old
				break
			}
		}
		keep[carried] = struct{}{}
		merged = append(merged, carried)
	}

	if err := engine.registry.Reload(merged); err != nil {
		return err
	}
	engine.tracker.CancelExcept(keep)

	engine.mutex.Lock()
	engine.rules = merged
	engine.mutex.Unlock()

	if engine.logger != nil {
		engine.logger.Info("rules reloaded", map[string]string{
			"filecron.category": "engine",
			"rules":             strconv.Itoa(len(merged)),
			"watches":           strconv.Itoa(engine.registry.Len()),
		})
	}
	return nil
}

// Run consumes notifications until the context is cancelled or the notifier
// closes its stream. Blocking here is the engine's natural idle state.
func (engine *Engine) Run(ctx context.Context) error {
	if engine == nil {
		return errors.New("engine is nil")
	}
	err := engine.dispatcher.Run(ctx, engine.notifier)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops issuing watches and ticks. Already-spawned commands are not
// touched.
func (engine *Engine) Close() error {
	if engine == nil {
		return nil
	}
	engine.tracker.Stop()
	closeErr := engine.registry.Close()
	if err := engine.notifier.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

// Tracked reports the number of live debounce entries.
func (engine *Engine) Tracked() int {
	if engine == nil {
		return 0
	}
	return engine.tracker.Len()
}

// Watches reports the number of live watch handles.
func (engine *Engine) Watches() int {
	if engine == nil {
		return 0
	}
	return engine.registry.Len()
}
