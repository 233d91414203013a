package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b := NewBus(opts...)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Stop(ctx)
	})
	return b
}

func TestPublishSyncDelivers(t *testing.T) {
	b := startBus(t)

	var got []Envelope
	_, err := b.Subscribe("change.recorded", func(env Envelope) error {
		got = append(got, env)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	env := New(TopicChangeRecorded, ChangeRecorded{ChangeID: "c1"}, "test", "req-1")
	if err := b.PublishSync(env); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("delivered = %d, want 1", len(got))
	}
	if got[0].Meta.CorrelationID != "req-1" {
		t.Errorf("correlation = %q, want req-1", got[0].Meta.CorrelationID)
	}
	payload, ok := got[0].Payload.(ChangeRecorded)
	if !ok || payload.ChangeID != "c1" {
		t.Errorf("payload = %#v", got[0].Payload)
	}
}

func TestPublishAsyncDelivers(t *testing.T) {
	b := startBus(t)

	var mu sync.Mutex
	var count int
	done := make(chan struct{})
	_, err := b.Subscribe("processing.**", func(env Envelope) error {
		mu.Lock()
		count++
		if count == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	_ = b.Publish(New(TopicProcessingStart, ProcessingStarted{RequestID: "r"}, "test", "r"))
	_ = b.Publish(New(TopicProcessingComplete, ProcessingCompleted{RequestID: "r"}, "test", "r"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async events not delivered")
	}
}

func TestWildcardRouting(t *testing.T) {
	b := startBus(t)

	var conflictOnly, all int
	if _, err := b.Subscribe("conflict.*", func(Envelope) error {
		conflictOnly++
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := b.Subscribe("**", func(Envelope) error {
		all++
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	_ = b.PublishSync(New(TopicConflictDetected, ConflictDetected{}, "test", ""))
	_ = b.PublishSync(New(TopicChangeRecorded, ChangeRecorded{}, "test", ""))

	if conflictOnly != 1 {
		t.Errorf("conflict.* deliveries = %d, want 1", conflictOnly)
	}
	if all != 2 {
		t.Errorf("** deliveries = %d, want 2", all)
	}
}

func TestHandlerPanicContained(t *testing.T) {
	b := startBus(t)

	if _, err := b.Subscribe("**", func(Envelope) error {
		panic("handler bug")
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Must not panic past the publish call.
	if err := b.PublishSync(New(TopicSessionStarted, SessionStarted{}, "test", "")); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
	if b.Stats().Panics != 1 {
		t.Errorf("panics = %d, want 1", b.Stats().Panics)
	}
}

func TestHandlerErrorCounted(t *testing.T) {
	b := startBus(t)

	if _, err := b.Subscribe("**", func(Envelope) error {
		return errors.New("no")
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	_ = b.PublishSync(New(TopicSessionEnded, SessionEnded{}, "test", ""))

	stats := b.Stats()
	if stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", stats.Errors)
	}
	if stats.Delivered != 0 {
		t.Errorf("delivered = %d, want 0", stats.Delivered)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := startBus(t)

	var count int
	sub, err := b.Subscribe("**", func(Envelope) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	_ = b.PublishSync(New(TopicSessionStarted, SessionStarted{}, "test", ""))
	b.Unsubscribe(sub)
	_ = b.PublishSync(New(TopicSessionStarted, SessionStarted{}, "test", ""))

	if count != 1 {
		t.Errorf("deliveries = %d, want 1", count)
	}
}

func TestPublishWhenStopped(t *testing.T) {
	b := NewBus()
	err := b.Publish(New(TopicSessionStarted, SessionStarted{}, "test", ""))
	if !errors.Is(err, ErrBusNotRunning) {
		t.Errorf("err = %v, want ErrBusNotRunning", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	b := NewBus()
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var mu sync.Mutex
	var count int
	if _, err := b.Subscribe("**", func(Envelope) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 0; i < 10; i++ {
		_ = b.Publish(New(TopicProcessingProgress, ProcessingProgress{Done: i}, "test", ""))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("delivered = %d, want 10 (stop should drain)", count)
	}
}
