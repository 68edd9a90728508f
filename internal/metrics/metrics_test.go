package metrics

import (
	"strings"
	"sync"
	"testing"
)

func TestRegistryCounts(t *testing.T) {
	registry := &Registry{}
	registry.IncNotifications()
	registry.IncNotifications()
	registry.IncDispatches()
	registry.IncCommandsSpawned()
	registry.IncSpawnFailures()
	registry.IncWatchErrors()
	registry.AddTrackedActive(2)
	registry.AddTrackedActive(-1)
	registry.IncTrackerFired()
	registry.IncTrackerAbandoned()

	snapshot := registry.Snapshot()
	if snapshot.Notifications != 2 || snapshot.Dispatches != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.TrackedActive != 1 {
		t.Fatalf("tracked active must follow deltas, got %d", snapshot.TrackedActive)
	}
}

func TestRegistryConcurrentIncrements(t *testing.T) {
	registry := &Registry{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				registry.IncDispatches()
			}
		}()
	}
	wg.Wait()
	if got := registry.Snapshot().Dispatches; got != 8000 {
		t.Fatalf("expected 8000 dispatches, got %d", got)
	}
}

func TestWriteTextListsEveryCounter(t *testing.T) {
	registry := &Registry{}
	registry.IncCommandsSpawned()

	var out strings.Builder
	if err := registry.WriteText(&out); err != nil {
		t.Fatalf("write: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "commands_spawned_total 1\n") {
		t.Fatalf("missing spawned counter in %q", text)
	}
	if !strings.Contains(text, "tracked_files_active 0\n") {
		t.Fatalf("missing gauge in %q", text)
	}
	if got := strings.Count(text, "\n"); got != 8 {
		t.Fatalf("expected 8 counter lines, got %d", got)
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.IncNotifications()
	registry.AddTrackedActive(5)
	if registry.Snapshot() != (Snapshot{}) {
		t.Fatal("nil registry must report zeros")
	}
	var out strings.Builder
	if err := registry.WriteText(&out); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(out.String(), "notifications_total 0\n") {
		t.Fatalf("nil registry must still render zeros, got %q", out.String())
	}
}
