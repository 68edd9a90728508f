package event

import (
	"context"
	"testing"
	"time"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{Name: "test"})
	defer bus.Close()

	first, cancelFirst := bus.Subscribe()
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe()
	defer cancelSecond()

	published := NewWatchEvent(TypeWatchError, "/data/in", "denied")
	bus.Publish(published)

	for _, ch := range []<-chan Event{first, second} {
		received := ReceiveWithTimeout(t, ch, time.Second)
		if received.Type() != TypeWatchError {
			t.Fatalf("unexpected event type %q", received.Type())
		}
	}
	if bus.Published() != 1 {
		t.Fatalf("expected 1 published event, got %d", bus.Published())
	}
}

func TestBusFilteredSubscription(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{})
	defer bus.Close()

	ch, cancel := bus.SubscribeFiltered(func(e Event) bool {
		return e.Type() == TypeTrackerFired
	})
	defer cancel()

	bus.Publish(NewWatchEvent(TypeWatchError, "/x", "nope"))
	bus.Publish(NewTrackerEvent(TypeTrackerFired, "/data/in", "/data/in/a.zip"))

	received := ReceiveWithTimeout(t, ch, time.Second)
	tracker, ok := received.(TrackerEvent)
	if !ok {
		t.Fatalf("expected TrackerEvent, got %T", received)
	}
	if tracker.Path != "/data/in/a.zip" {
		t.Fatalf("unexpected path %q", tracker.Path)
	}
	select {
	case extra := <-ch:
		t.Fatalf("filtered-out event delivered: %v", extra)
	default:
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{SubscriberBufferSize: 1})
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(NewWatchEvent(TypeWatchError, "/x", "overflow"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if bus.Dropped() == 0 {
		t.Fatal("expected overflow deliveries to be dropped")
	}
}

func TestBusCloseUnblocksSubscribers(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{})
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got an event")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscribers remained after close: %d", bus.SubscriberCount())
	}
}

func TestBusContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus[Event](ctx, BusOptions{})
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got an event")
		}
	case <-time.After(time.Second):
		t.Fatal("bus did not close when its context was cancelled")
	}
}

func TestBusRejectsSubscribersOverLimit(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{MaxSubscribers: 1})
	defer bus.Close()

	_, cancelFirst := bus.Subscribe()
	defer cancelFirst()

	rejected, cancelSecond := bus.Subscribe()
	defer cancelSecond()
	if _, ok := <-rejected; ok {
		t.Fatal("subscriber over the limit must get a closed channel")
	}
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus[Event](context.Background(), BusOptions{})
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestNilBusIsInert(t *testing.T) {
	var bus *Bus[Event]
	bus.Publish(NewWatchEvent(TypeWatchError, "/x", "nil"))
	bus.Close()
	if bus.SubscriberCount() != 0 || bus.Published() != 0 || bus.Dropped() != 0 {
		t.Fatal("nil bus must report zero activity")
	}
	ch, cancel := bus.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("nil bus subscription must be closed")
	}
}
