package engine

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"filecron/internal/metrics"
	"filecron/internal/rule"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	if _, err := file.WriteString(content); err != nil {
		t.Fatalf("append %s: %v", path, err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func TestTrackerFiresOnceAfterSizeSettles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	writeFile(t, path, "first")

	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)
	defer tracker.Stop()

	debounced := &rule.Rule{
		Path:          dir,
		Mask:          rule.Create,
		Command:       "true",
		CheckInterval: 40 * time.Millisecond,
	}
	tracker.Track(debounced, path)

	// The file grows after the baseline was taken, so the first poll sees a
	// change and the stability wait restarts.
	appendFile(t, path, " and more")

	executor.waitForCalls(t, 1, 2*time.Second)

	// Give further ticks a chance to misfire, then confirm exactly one.
	time.Sleep(120 * time.Millisecond)
	calls := executor.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one execution, got %d", len(calls))
	}
	if calls[0].path != path {
		t.Fatalf("fired with path %q, want %q", calls[0].path, path)
	}
	if tracker.Len() != 0 {
		t.Fatalf("entry not removed after firing, %d left", tracker.Len())
	}
}

func TestTrackerDoesNotFireWhileGrowing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	writeFile(t, path, "x")

	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)
	defer tracker.Stop()

	debounced := &rule.Rule{
		Path:          dir,
		Mask:          rule.Create,
		Command:       "true",
		CheckInterval: 50 * time.Millisecond,
	}
	tracker.Track(debounced, path)

	// Keep the file growing across several intervals.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		appendFile(t, path, "x")
	}
	if len(executor.Calls()) != 0 {
		t.Fatalf("fired while still growing: %d executions", len(executor.Calls()))
	}

	executor.waitForCalls(t, 1, 2*time.Second)
}

func TestTrackerAbandonsDeletedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	writeFile(t, path, "data")

	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)
	defer tracker.Stop()

	debounced := &rule.Rule{
		Path:          dir,
		Mask:          rule.Create,
		Command:       "true",
		CheckInterval: 30 * time.Millisecond,
	}
	tracker.Track(debounced, path)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for tracker.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tracker.Len() != 0 {
		t.Fatal("deleted file still tracked")
	}
	if len(executor.Calls()) != 0 {
		t.Fatalf("deleted file must not execute, got %d executions", len(executor.Calls()))
	}
}

func TestTrackerTracksRulesIndependently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shared.bin")
	writeFile(t, path, "data")

	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)
	defer tracker.Stop()

	first := &rule.Rule{Path: dir, Mask: rule.Create, Command: "a", CheckInterval: 40 * time.Millisecond}
	second := &rule.Rule{Path: dir, Mask: rule.Create, Command: "b", CheckInterval: 40 * time.Millisecond}
	tracker.Track(first, path)
	tracker.Track(second, path)
	if tracker.Len() != 2 {
		t.Fatalf("expected independent entries per rule, got %d", tracker.Len())
	}

	executor.waitForCalls(t, 2, 2*time.Second)
	calls := executor.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected two executions, got %d", len(calls))
	}
	if calls[0].rule == calls[1].rule {
		t.Fatal("both executions bound to the same rule")
	}
}

func TestTrackerCancelThenStopIsSafe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	writeFile(t, path, "data")

	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)

	debounced := &rule.Rule{Path: dir, Mask: rule.Create, Command: "a", CheckInterval: time.Hour}
	tracker.Track(debounced, path)

	// Withdrawing every rule, again, then stopping must each find the entry
	// at most once.
	tracker.CancelExcept(map[*rule.Rule]struct{}{})
	if tracker.Len() != 0 {
		t.Fatalf("cancelled entry still tracked: %d", tracker.Len())
	}
	tracker.CancelExcept(map[*rule.Rule]struct{}{})
	tracker.Stop()

	if len(executor.Calls()) != 0 {
		t.Fatal("cancelled entry must not execute")
	}
}

func TestTrackerCancelReportsAbandonment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	writeFile(t, path, "data")

	executor := newFakeExecutor()
	counters := &metrics.Registry{}
	tracker := NewTracker(executor, nil, counters, nil)
	defer tracker.Stop()

	debounced := &rule.Rule{Path: dir, Mask: rule.Create, Command: "a", CheckInterval: time.Hour}
	tracker.Track(debounced, path)
	tracker.CancelExcept(map[*rule.Rule]struct{}{})

	snapshot := counters.Snapshot()
	if snapshot.TrackerAbandoned != 1 {
		t.Fatalf("expected one abandonment, got %d", snapshot.TrackerAbandoned)
	}
	if snapshot.TrackedActive != 0 {
		t.Fatalf("active gauge not released, got %d", snapshot.TrackedActive)
	}
}

func TestTrackerAbandonsAfterRepeatedPollFailures(t *testing.T) {
	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)
	defer tracker.Stop()

	var polls atomic.Int32
	tracker.statFile = func(string) (os.FileInfo, error) {
		polls.Add(1)
		return nil, errors.New("input/output error")
	}

	debounced := &rule.Rule{Path: "/data", Mask: rule.Create, Command: "true", CheckInterval: 20 * time.Millisecond}
	tracker.Track(debounced, "/data/up.bin")

	deadline := time.Now().Add(2 * time.Second)
	for tracker.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tracker.Len() != 0 {
		t.Fatal("entry survived repeated poll failures")
	}
	// One baseline probe plus exactly five failed polls.
	if got := polls.Load(); got != 6 {
		t.Fatalf("expected 6 stat calls, got %d", got)
	}
	if len(executor.Calls()) != 0 {
		t.Fatalf("abandoned entry must not execute, got %d executions", len(executor.Calls()))
	}
}

func TestTrackerRetriesTransientPollFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	writeFile(t, path, "data")

	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)
	defer tracker.Stop()

	// The baseline probe and the first two polls fail; the entry must stay
	// alive and fire once stats recover and the size holds.
	var polls atomic.Int32
	tracker.statFile = func(name string) (os.FileInfo, error) {
		if polls.Add(1) <= 3 {
			return nil, errors.New("input/output error")
		}
		return os.Stat(name)
	}

	debounced := &rule.Rule{Path: dir, Mask: rule.Create, Command: "true", CheckInterval: 20 * time.Millisecond}
	tracker.Track(debounced, path)

	executor.waitForCalls(t, 1, 2*time.Second)
	calls := executor.Calls()
	if len(calls) != 1 || calls[0].path != path {
		t.Fatalf("unexpected executions %v", calls)
	}
}

func TestTrackerStopPreventsFiring(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	writeFile(t, path, "data")

	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)

	debounced := &rule.Rule{Path: dir, Mask: rule.Create, Command: "a", CheckInterval: time.Hour}
	tracker.Track(debounced, path)
	tracker.Stop()

	if tracker.Len() != 0 {
		t.Fatalf("entries survived stop: %d", tracker.Len())
	}
	if len(executor.Calls()) != 0 {
		t.Fatal("stop must prevent execution")
	}
}

func TestTrackerIgnoresNonDebouncedRules(t *testing.T) {
	executor := newFakeExecutor()
	tracker := NewTracker(executor, nil, nil, nil)
	defer tracker.Stop()

	immediate := &rule.Rule{Path: "/tmp", Mask: rule.Create, Command: "a"}
	tracker.Track(immediate, "/tmp/x")
	if tracker.Len() != 0 {
		t.Fatal("non-debounced rule must not be tracked")
	}
}
