package engine

import (
	"fmt"
	"path/filepath"
	"sync"

	"filecron/internal/event"
	"filecron/internal/logging"
	"filecron/internal/metrics"
	"filecron/internal/rule"
	"filecron/internal/watch"
)

// Binding ties a rule to the watch issued for its path. The registry resolves
// paths once; Path is the absolute form every later dispatch works with.
type Binding struct {
	Rule *rule.Rule
	Mask rule.EventKind
	Path string
}

// WatchTable maps a watch handle to the rules interested in it, in rule
// declaration order. Read-only between reloads.
type WatchTable map[watch.Handle][]Binding

// Registry turns an ordered rule set into a minimal set of notifier watches:
// rules are grouped by resolved path and one watch carries the union of their
// masks.
type Registry struct {
	notifier watch.Notifier
	logger   *logging.Logger
	metrics  *metrics.Registry
	bus      *event.Bus[event.Event]

	mutex  sync.Mutex
	table  WatchTable
	groups map[string]*watchGroup
}

type watchGroup struct {
	path     string
	mask     rule.EventKind
	handle   watch.Handle
	bindings []Binding
}

func NewRegistry(notifier watch.Notifier, logger *logging.Logger, registry *metrics.Registry, bus *event.Bus[event.Event]) *Registry {
	return &Registry{
		notifier: notifier,
		logger:   logger,
		metrics:  registry,
		bus:      bus,
		table:    make(WatchTable),
		groups:   make(map[string]*watchGroup),
	}
}

// Register issues watches for the rule set. A path that cannot be watched
// costs only its own rules; registration fails outright only when nothing at
// all could be watched.
func (registry *Registry) Register(rules []*rule.Rule) error {
	if registry == nil {
		return fmt.Errorf("registry is nil")
	}

	desired, order := groupRules(rules, registry.logger)

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	table := make(WatchTable, len(order))
	groups := make(map[string]*watchGroup, len(order))
	registered := 0
	for _, path := range order {
		group := desired[path]
		if registry.registerGroupLocked(group) {
			table[group.handle] = group.bindings
			groups[path] = group
			registered++
		}
	}
	registry.table = table
	registry.groups = groups

	if len(rules) > 0 && registered == 0 {
		return ErrNoWatches
	}
	return nil
}

// Reload swaps in a new rule set, keeping live watches whose path and union
// mask are unchanged so no events are lost for them during the transition.
func (registry *Registry) Reload(rules []*rule.Rule) error {
	if registry == nil {
		return fmt.Errorf("registry is nil")
	}

	desired, order := groupRules(rules, registry.logger)

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	for path, current := range registry.groups {
		next, ok := desired[path]
		if ok && next.mask == current.mask {
			continue
		}
		if err := registry.notifier.Unregister(current.handle); err != nil {
			registry.logWatchError(path, err)
		}
		delete(registry.groups, path)
	}

	table := make(WatchTable, len(order))
	groups := make(map[string]*watchGroup, len(order))
	registered := 0
	for _, path := range order {
		group := desired[path]
		if current, ok := registry.groups[path]; ok {
			group.handle = current.handle
		} else if !registry.registerGroupLocked(group) {
			continue
		}
		table[group.handle] = group.bindings
		groups[path] = group
		registered++
	}
	registry.table = table
	registry.groups = groups

	if len(rules) > 0 && registered == 0 {
		return ErrNoWatches
	}
	return nil
}

// Lookup resolves the bindings interested in a watch handle.
func (registry *Registry) Lookup(handle watch.Handle) []Binding {
	if registry == nil {
		return nil
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return registry.table[handle]
}

// Len reports the number of live watches.
func (registry *Registry) Len() int {
	if registry == nil {
		return 0
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.table)
}

// Close releases every live watch.
func (registry *Registry) Close() error {
	if registry == nil {
		return nil
	}
	registry.mutex.Lock()
	groups := registry.groups
	registry.groups = make(map[string]*watchGroup)
	registry.table = make(WatchTable)
	registry.mutex.Unlock()

	var closeErr error
	for _, group := range groups {
		if err := registry.notifier.Unregister(group.handle); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

func (registry *Registry) registerGroupLocked(group *watchGroup) bool {
	handle, err := registry.notifier.Register(group.path, group.mask)
	if err != nil {
		registry.logWatchError(group.path, err)
		return false
	}
	group.handle = handle
	if registry.logger != nil {
		registry.logger.Info("watch registered", map[string]string{
			"filecron.category": "registry",
			"path":              group.path,
			"mask":              group.mask.String(),
			"rules":             fmt.Sprintf("%d", len(group.bindings)),
		})
	}
	return true
}

func (registry *Registry) logWatchError(path string, err error) {
	watchErr := &WatchError{Path: path, Err: err}
	registry.metrics.IncWatchErrors()
	if registry.logger != nil {
		registry.logger.Warn("watch registration failed", map[string]string{
			"filecron.category": "registry",
			"path":              path,
			"error":             err.Error(),
		})
	}
	if registry.bus != nil {
		registry.bus.Publish(event.NewWatchEvent(event.TypeWatchError, path, watchErr.Error()))
	}
}

// groupRules resolves rule paths and groups rules by absolute path, unioning
// their masks. Order preserves first appearance so registration and dispatch
// honor declaration order.
func groupRules(rules []*rule.Rule, logger *logging.Logger) (map[string]*watchGroup, []string) {
	groups := make(map[string]*watchGroup, len(rules))
	order := make([]string, 0, len(rules))
	for _, candidate := range rules {
		if candidate == nil {
			continue
		}
		resolved, err := filepath.Abs(candidate.Path)
		if err != nil {
			if logger != nil {
				logger.Warn("rule path could not be resolved", map[string]string{
					"filecron.category": "registry",
					"path":              candidate.Path,
					"error":             err.Error(),
				})
			}
			continue
		}
		resolved = filepath.Clean(resolved)
		group, ok := groups[resolved]
		if !ok {
			group = &watchGroup{path: resolved}
			groups[resolved] = group
			order = append(order, resolved)
		}
		group.mask |= candidate.Mask
		group.bindings = append(group.bindings, Binding{
			Rule: candidate,
			Mask: candidate.Mask,
			Path: resolved,
		})
	}
	return groups, order
}
