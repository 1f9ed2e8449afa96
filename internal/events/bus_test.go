package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestEmitFansOut(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var mu sync.Mutex
	var got []string
	var wg sync.WaitGroup
	wg.Add(3)

	record := func(name string) HandlerFunc {
		return func(ctx context.Context, ev Event) error {
			defer wg.Done()
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
			return nil
		}
	}
	bus.Subscribe(EventPush, "a", record("a"))
	bus.Subscribe(EventPush, "b", record("b"))
	bus.Subscribe(EventAny, "all", record("all"))
	bus.Subscribe(EventKicked, "other", func(context.Context, Event) error {
		t.Error("handler for another event type called")
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventPush, Source: "test"})
	wg.Wait()

	if len(got) != 3 {
		t.Errorf("handlers called = %v, want 3", got)
	}
}

func TestEmitSyncReturnsFirstError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	boom := errors.New("boom")
	bus.Subscribe(EventPush, "fails", func(context.Context, Event) error { return boom })
	bus.Subscribe(EventPush, "panics", func(context.Context, Event) error { panic("bug") })

	if err := bus.EmitSync(context.Background(), Event{Type: EventPush}); !errors.Is(err, boom) {
		t.Errorf("EmitSync() error = %v, want boom", err)
	}
}

func TestEmitSetsTime(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	done := make(chan Event, 1)
	bus.Subscribe(EventShutdown, "t", func(_ context.Context, ev Event) error {
		done <- ev
		return nil
	})
	bus.Emit(context.Background(), Event{Type: EventShutdown})
	if ev := <-done; ev.Time.IsZero() {
		t.Error("event time not set")
	}
}

func TestUnsubscribeAndStop(t *testing.T) {
	bus := NewEventBus()

	bus.Subscribe(EventPush, "a", func(context.Context, Event) error { return nil })
	bus.Subscribe(EventPush, "b", func(context.Context, Event) error { return nil })
	bus.Unsubscribe(EventPush, "a")
	if n := bus.HandlerCount(EventPush); n != 1 {
		t.Errorf("HandlerCount() = %d, want 1", n)
	}

	bus.Stop()
	bus.Stop()
	select {
	case <-bus.StopCh():
	default:
		t.Error("StopCh not closed")
	}
	if err := bus.EmitSync(context.Background(), Event{Type: EventPush}); err != nil {
		t.Errorf("EmitSync after Stop = %v", err)
	}
}
