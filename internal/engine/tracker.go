package engine

import (
	"os"
	"strconv"
	"sync"
	"time"

	"filecron/internal/event"
	"filecron/internal/logging"
	"filecron/internal/metrics"
	"filecron/internal/rule"
)

// maxPollFailures bounds consecutive transient stat failures before a tracked
// file is abandoned.
const maxPollFailures = 5

type trackState int

const (
	statePending trackState = iota
	stateWatching
	stateStable
	stateFired
	stateGone
)

func (state trackState) String() string {
	switch state {
	case statePending:
		return "pending"
	case stateWatching:
		return "watching"
	case stateStable:
		return "stable"
	case stateFired:
		return "fired"
	case stateGone:
		return "gone"
	default:
		return "unknown"
	}
}

type trackedKey struct {
	rule *rule.Rule
	path string
}

// trackedFile is one debounce state machine. After registration its fields
// are touched only by its own poll goroutine; the tracker map mutex guards
// nothing beyond membership.
type trackedFile struct {
	rule         *rule.Rule
	path         string
	lastSize     int64
	state        trackState
	pollFailures int
	cancel       chan struct{}
}

// Tracker defers command execution for debounced rules until the triggering
// file's size has stopped changing. Entries are keyed by (rule, path): two
// rules watching the same path track independently.
type Tracker struct {
	executor Executor
	logger   *logging.Logger
	metrics  *metrics.Registry
	bus      *event.Bus[event.Event]
	statFile func(string) (os.FileInfo, error)

	mutex   sync.Mutex
	entries map[trackedKey]*trackedFile
	stopped bool
	wg      sync.WaitGroup
}

func NewTracker(executor Executor, logger *logging.Logger, counters *metrics.Registry, bus *event.Bus[event.Event]) *Tracker {
	return &Tracker{
		executor: executor,
		logger:   logger,
		metrics:  counters,
		bus:      bus,
		statFile: os.Stat,
		entries:  make(map[trackedKey]*trackedFile),
	}
}

// Track starts a debounce state machine for (r, path), polling at the rule's
// check interval. Tracking an already-tracked pair is a no-op: the fresh
// notification is informational and must not reset the baseline.
func (tracker *Tracker) Track(r *rule.Rule, path string) {
	if tracker == nil || r == nil || !r.Debounced() {
		return
	}
	key := trackedKey{rule: r, path: path}

	tracker.mutex.Lock()
	if tracker.stopped {
		tracker.mutex.Unlock()
		return
	}
	if _, ok := tracker.entries[key]; ok {
		tracker.mutex.Unlock()
		return
	}

	entry := &trackedFile{
		rule:   r,
		path:   path,
		state:  statePending,
		cancel: make(chan struct{}),
	}
	// Baseline size. A file that cannot be statted yet baselines at zero,
	// so the first successful poll registers as a change.
	if info, err := tracker.statFile(path); err == nil {
		entry.lastSize = info.Size()
	}
	entry.state = stateWatching
	tracker.entries[key] = entry
	tracker.wg.Add(1)
	tracker.mutex.Unlock()

	tracker.metrics.AddTrackedActive(1)
	if tracker.bus != nil {
		tracker.bus.Publish(event.NewTrackerEvent(event.TypeTrackerStarted, r.Path, path))
	}
	if tracker.logger != nil {
		tracker.logger.Debug("tracking file for stability", map[string]string{
			"filecron.category": "tracker",
			"path":              path,
			"interval":          r.CheckInterval.String(),
		})
	}

	go tracker.poll(key, entry)
}

// Len reports the number of live tracked files.
func (tracker *Tracker) Len() int {
	if tracker == nil {
		return 0
	}
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	return len(tracker.entries)
}

// CancelExcept abandons every tracked entry whose rule is not in keep. Used
// on reload so entries for withdrawn rules never fire. Entries leave the map
// before their cancel channel closes, so no entry can be collected twice.
func (tracker *Tracker) CancelExcept(keep map[*rule.Rule]struct{}) {
	if tracker == nil {
		return
	}
	tracker.mutex.Lock()
	var cancelled []*trackedFile
	for key, entry := range tracker.entries {
		if _, ok := keep[key.rule]; ok {
			continue
		}
		delete(tracker.entries, key)
		cancelled = append(cancelled, entry)
	}
	tracker.mutex.Unlock()

	for _, entry := range cancelled {
		close(entry.cancel)
		tracker.report(entry, stateGone)
	}
}

// Stop abandons all tracking and waits for poll goroutines to finish. No
// commands fire after Stop returns.
func (tracker *Tracker) Stop() {
	if tracker == nil {
		return
	}
	tracker.mutex.Lock()
	if tracker.stopped {
		tracker.mutex.Unlock()
		tracker.wg.Wait()
		return
	}
	tracker.stopped = true
	entries := make([]*trackedFile, 0, len(tracker.entries))
	for _, entry := range tracker.entries {
		entries = append(entries, entry)
	}
	tracker.entries = make(map[trackedKey]*trackedFile)
	tracker.mutex.Unlock()

	for _, entry := range entries {
		close(entry.cancel)
		tracker.report(entry, stateGone)
	}
	tracker.wg.Wait()
}

func (tracker *Tracker) poll(key trackedKey, entry *trackedFile) {
	defer tracker.wg.Done()
	ticker := time.NewTicker(entry.rule.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-entry.cancel:
			// Whoever closed the channel already removed and reported
			// the entry.
			return
		case <-ticker.C:
			if tracker.tick(key, entry) {
				return
			}
		}
	}
}

// tick advances the state machine once. Returns true when the entry reached a
// terminal state and the poll loop should exit.
func (tracker *Tracker) tick(key trackedKey, entry *trackedFile) bool {
	info, err := tracker.statFile(entry.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Vanished mid-poll: abandonment, not an error.
			entry.state = stateGone
			tracker.finish(key, entry)
			return true
		}
		entry.pollFailures++
		pollErr := &PollError{Path: entry.path, Err: err}
		if tracker.logger != nil {
			tracker.logger.Warn("tracked file poll failed", map[string]string{
				"filecron.category": "tracker",
				"path":              entry.path,
				"failures":          strconv.Itoa(entry.pollFailures),
				"error":             pollErr.Error(),
			})
		}
		if entry.pollFailures >= maxPollFailures {
			entry.state = stateGone
			tracker.finish(key, entry)
			return true
		}
		return false
	}
	entry.pollFailures = 0

	size := info.Size()
	if size != entry.lastSize {
		// Still growing. Stability requires an unchanged size across one
		// full interval, so the baseline moves and the wait restarts.
		entry.lastSize = size
		return false
	}

	entry.state = stateStable
	if tracker.logger != nil {
		tracker.logger.Info("file settled", map[string]string{
			"filecron.category": "tracker",
			"path":              entry.path,
			"size":              strconv.FormatInt(size, 10),
		})
	}
	if err := tracker.executor.Execute(entry.rule, entry.path); err != nil && tracker.logger != nil {
		tracker.logger.Warn("command spawn failed", map[string]string{
			"filecron.category": "tracker",
			"path":              entry.path,
			"error":             err.Error(),
		})
	}
	entry.state = stateFired
	tracker.finish(key, entry)
	return true
}

// finish drops an entry that reached a terminal state in its own poll loop.
// A canceller may have removed the key already; only the remover reports.
func (tracker *Tracker) finish(key trackedKey, entry *trackedFile) {
	tracker.mutex.Lock()
	_, ok := tracker.entries[key]
	if ok {
		delete(tracker.entries, key)
	}
	tracker.mutex.Unlock()
	if !ok {
		return
	}
	tracker.report(entry, entry.state)
}

func (tracker *Tracker) report(entry *trackedFile, state trackState) {
	tracker.metrics.AddTrackedActive(-1)
	switch state {
	case stateFired:
		tracker.metrics.IncTrackerFired()
		if tracker.bus != nil {
			tracker.bus.Publish(event.NewTrackerEvent(event.TypeTrackerFired, entry.rule.Path, entry.path))
		}
	case stateGone:
		tracker.metrics.IncTrackerAbandoned()
		if tracker.bus != nil {
			tracker.bus.Publish(event.NewTrackerEvent(event.TypeTrackerAbandoned, entry.rule.Path, entry.path))
		}
		if tracker.logger != nil {
			tracker.logger.Debug("tracked file abandoned", map[string]string{
				"filecron.category": "tracker",
				"path":              entry.path,
			})
		}
	}
}
