package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu          sync.Mutex
	events      []*Event
	emitErr     error
	hasDeadline bool
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, m.hasDeadline = ctx.Deadline()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func TestDeliver_NilEmitter(t *testing.T) {
	// Should not panic
	Deliver(nil, &Event{EventType: EventApplied})
}

func TestDeliver_NilEvent(t *testing.T) {
	emitter := &mockEventEmitter{}
	Deliver(emitter, nil)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestDeliver_IsSynchronous(t *testing.T) {
	emitter := &mockEventEmitter{}
	event := &Event{RunID: "run-1", EventType: EventApplied, Script: "0001_chiang_rai_module.sql"}

	Deliver(emitter, event)

	// No sleep: the event must already be recorded when Deliver returns.
	events := emitter.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].RunID != "run-1" || events[0].EventType != EventApplied {
		t.Errorf("event = %+v", events[0])
	}
	if !emitter.hasDeadline {
		t.Error("Deliver should bound Emit with a deadline")
	}
}

func TestDeliver_ErrorIsSwallowed(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: errors.New("collector down")}
	// Should not panic; the error is logged.
	Deliver(emitter, &Event{EventType: EventFailed})
	if n := len(emitter.getEvents()); n != 1 {
		t.Errorf("expected 1 attempted event, got %d", n)
	}
}

func TestFanout_EmitsToAll(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: errors.New("b failed")}
	c := &mockEventEmitter{}

	err := Fanout(a, nil, b, c).Emit(context.Background(), &Event{EventType: EventApplied})
	if err == nil || err.Error() != "b failed" {
		t.Errorf("Fanout error = %v, want b failed", err)
	}
	for name, m := range map[string]*mockEventEmitter{"a": a, "b": b, "c": c} {
		if n := len(m.getEvents()); n != 1 {
			t.Errorf("emitter %s got %d events, want 1", name, n)
		}
	}
}

func TestFanout_Empty(t *testing.T) {
	if err := Fanout().Emit(context.Background(), &Event{}); err != nil {
		t.Errorf("empty Fanout should not fail, got %v", err)
	}
}

// hangingEmitter blocks until its context is done, like a sink that never answers.
type hangingEmitter struct{}

func (hangingEmitter) Emit(ctx context.Context, _ *Event) error {
	<-ctx.Done()
	return ctx.Err()
}

// ctxEmitter records the state of the context it was handed.
type ctxEmitter struct {
	mu     sync.Mutex
	called bool
	ctxErr error
}

func (c *ctxEmitter) Emit(ctx context.Context, _ *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.called = true
	c.ctxErr = ctx.Err()
	return nil
}

func TestDeliver_SlowEmitterDoesNotStarveOthers(t *testing.T) {
	old := emitTimeout
	emitTimeout = 50 * time.Millisecond
	t.Cleanup(func() { emitTimeout = old })

	next := &ctxEmitter{}
	start := time.Now()
	Deliver(Fanout(hangingEmitter{}, next), &Event{EventType: EventFailed})

	next.mu.Lock()
	defer next.mu.Unlock()
	if !next.called {
		t.Fatal("second emitter was not called")
	}
	if next.ctxErr != nil {
		t.Errorf("second emitter got a spent context: %v", next.ctxErr)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Deliver took %v, want about one emitTimeout", elapsed)
	}
}
