package event

import (
	"sync"
	"testing"
	"time"
)

// Collector stores events received from callbacks or subscriptions.
type Collector[T any] struct {
	mu     sync.Mutex
	events []T
}

func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{}
}

func (collector *Collector[T]) Collect(event T) {
	if collector == nil {
		return
	}
	collector.mu.Lock()
	collector.events = append(collector.events, event)
	collector.mu.Unlock()
}

func (collector *Collector[T]) Events() []T {
	if collector == nil {
		return nil
	}
	collector.mu.Lock()
	defer collector.mu.Unlock()
	copyEvents := make([]T, len(collector.events))
	copy(copyEvents, collector.events)
	return copyEvents
}

func (collector *Collector[T]) Len() int {
	if collector == nil {
		return 0
	}
	collector.mu.Lock()
	defer collector.mu.Unlock()
	return len(collector.events)
}

// ReceiveWithTimeout waits for a single event or fails the test.
func ReceiveWithTimeout[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return event
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event after %s", timeout)
	}
	var zero T
	return zero
}
