package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Registry counts engine activity. All methods are safe for concurrent use
// and tolerate a nil receiver so callers never need to guard.
type Registry struct {
	notifications    atomic.Int64
	dispatches       atomic.Int64
	commandsSpawned  atomic.Int64
	spawnFailures    atomic.Int64
	watchErrors      atomic.Int64
	trackedActive    atomic.Int64
	trackerFired     atomic.Int64
	trackerAbandoned atomic.Int64
}

var Default = &Registry{}

type Snapshot struct {
	Notifications    int64
	Dispatches       int64
	CommandsSpawned  int64
	SpawnFailures    int64
	WatchErrors      int64
	TrackedActive    int64
	TrackerFired     int64
	TrackerAbandoned int64
}

func (r *Registry) IncNotifications() {
	if r == nil {
		return
	}
	r.notifications.Add(1)
}

func (r *Registry) IncDispatches() {
	if r == nil {
		return
	}
	r.dispatches.Add(1)
}

func (r *Registry) IncCommandsSpawned() {
	if r == nil {
		return
	}
	r.commandsSpawned.Add(1)
}

func (r *Registry) IncSpawnFailures() {
	if r == nil {
		return
	}
	r.spawnFailures.Add(1)
}

func (r *Registry) IncWatchErrors() {
	if r == nil {
		return
	}
	r.watchErrors.Add(1)
}

func (r *Registry) AddTrackedActive(delta int64) {
	if r == nil {
		return
	}
	r.trackedActive.Add(delta)
}

func (r *Registry) IncTrackerFired() {
	if r == nil {
		return
	}
	r.trackerFired.Add(1)
}

func (r *Registry) IncTrackerAbandoned() {
	if r == nil {
		return
	}
	r.trackerAbandoned.Add(1)
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Notifications:    r.notifications.Load(),
		Dispatches:       r.dispatches.Load(),
		CommandsSpawned:  r.commandsSpawned.Load(),
		SpawnFailures:    r.spawnFailures.Load(),
		WatchErrors:      r.watchErrors.Load(),
		TrackedActive:    r.trackedActive.Load(),
		TrackerFired:     r.trackerFired.Load(),
		TrackerAbandoned: r.trackerAbandoned.Load(),
	}
}

// WriteText renders the snapshot as one counter per line.
func (r *Registry) WriteText(w io.Writer) error {
	snapshot := r.Snapshot()
	lines := []struct {
		name  string
		value int64
	}{
		{"notifications_total", snapshot.Notifications},
		{"dispatches_total", snapshot.Dispatches},
		{"commands_spawned_total", snapshot.CommandsSpawned},
		{"spawn_failures_total", snapshot.SpawnFailures},
		{"watch_errors_total", snapshot.WatchErrors},
		{"tracked_files_active", snapshot.TrackedActive},
		{"tracker_fired_total", snapshot.TrackerFired},
		{"tracker_abandoned_total", snapshot.TrackerAbandoned},
	}
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s %d\n", line.name, line.value); err != nil {
			return err
		}
	}
	return nil
}
