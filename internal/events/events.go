// Package events implements Griffin's execution event pipeline: a
// synchronous emitter that swallows sink failures, fanning out to Local or
// Durable sinks.
package events

import (
	"context"
	"log/slog"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// Emitter is what the execution engine depends on. Emit never reports
// sink failures to the caller; a Durable sink's Emit publishes
// synchronously when its batch fills, so that call waits for the publish
// and any retries. Flush bounds in-flight events before a run returns its
// result.
type Emitter interface {
	Emit(ctx context.Context, event models.Event)
	Flush(ctx context.Context) error
}

// Adapter publishes a batch of events to a downstream system. Adapters
// satisfy exactly this contract; Memory and Kinesis are the two built in.
type Adapter interface {
	Publish(ctx context.Context, events []models.Event) error
}

// Subscriber receives every event a Local sink fans out.
type Subscriber func(event models.Event)

// Local fans events out in-process to registered subscribers. Used for
// tests and CLI-local runs where no durable sink is configured.
type Local struct {
	logger      *slog.Logger
	subscribers []Subscriber
}

// NewLocal returns a Local sink with no subscribers registered.
func NewLocal(logger *slog.Logger) *Local {
	return &Local{logger: logger}
}

// Subscribe registers a callback invoked for every emitted event.
func (l *Local) Subscribe(s Subscriber) {
	l.subscribers = append(l.subscribers, s)
}

// Emit fans the event out synchronously; a panicking subscriber is
// recovered and logged so one bad subscriber cannot break the engine.
func (l *Local) Emit(_ context.Context, event models.Event) {
	for _, s := range l.subscribers {
		l.safeDeliver(s, event)
	}
}

func (l *Local) safeDeliver(s Subscriber, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("events: subscriber panicked", "recover", r, "event_type", event.Type)
		}
	}()
	s(event)
}

// Flush is a no-op for Local: there is nothing buffered.
func (l *Local) Flush(_ context.Context) error { return nil }
