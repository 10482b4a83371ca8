package telemetry

import (
	"context"
	"errors"
	"log"
	"time"
)

// emitTimeout is the max time allowed for a single emitter.
var emitTimeout = 5 * time.Second

// Deliver runs Emit synchronously and logs any error.
// The runner is a one-shot process, so a fire-and-forget goroutine would be lost at exit.
//
// Each emitter gets its own emitTimeout; for a Fanout that means one slow sink cannot use up
// the budget of the ones after it.
//
// emitter and event may be nil; Deliver returns immediately.
// The emit uses context.Background() so a cancelled run context still reports its failure.
func Deliver(emitter EventEmitter, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	emitters, ok := emitter.(fanout)
	if !ok {
		emitters = fanout{emitter}
	}
	for _, e := range emitters {
		if err := emitOne(e, event); err != nil {
			log.Printf("telemetry: emit %s failed: %v", event.EventType, err)
		}
	}
}

func emitOne(e EventEmitter, event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	return e.Emit(ctx, event)
}

// Fanout returns an EventEmitter that emits to every non-nil emitter in order.
// Every emitter is tried; the returned error joins all failures. Called directly, all emitters
// share the caller's ctx; Deliver bounds each one separately.
func Fanout(emitters ...EventEmitter) EventEmitter {
	out := make(fanout, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type fanout []EventEmitter

func (f fanout) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range f {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
