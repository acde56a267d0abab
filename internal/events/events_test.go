package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/griffin-monitoring/griffin/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLocal_FansOutToSubscribers(t *testing.T) {
	local := NewLocal(discardLogger())

	var mu sync.Mutex
	var received []models.Event
	local.Subscribe(func(e models.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	})

	local.Emit(context.Background(), models.Event{EventID: "1", Type: models.EventPlanStart})
	local.Emit(context.Background(), models.Event{EventID: "2", Type: models.EventPlanEnd})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("len(received) = %d, want 2", len(received))
	}
	if received[0].EventID != "1" || received[1].EventID != "2" {
		t.Errorf("received = %+v, want in emit order", received)
	}
}

func TestLocal_SubscriberPanicIsolated(t *testing.T) {
	local := NewLocal(discardLogger())
	local.Subscribe(func(models.Event) { panic("boom") })

	called := false
	local.Subscribe(func(models.Event) { called = true })

	local.Emit(context.Background(), models.Event{EventID: "1"})

	if !called {
		t.Error("a panicking subscriber should not prevent later subscribers from running")
	}
}

type fakeAdapter struct {
	mu        sync.Mutex
	failCount int
	batches   [][]models.Event
}

func (f *fakeAdapter) Publish(_ context.Context, events []models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCount > 0 {
		f.failCount--
		return errors.New("publish failed")
	}
	f.batches = append(f.batches, events)
	return nil
}

func TestDurable_FlushesOnBatchSize(t *testing.T) {
	adapter := &fakeAdapter{}
	d := NewDurable(DurableConfig{BatchSize: 2, FlushInterval: time.Hour}, adapter, discardLogger())

	d.Emit(context.Background(), models.Event{EventID: "1"})
	d.Emit(context.Background(), models.Event{EventID: "2"})

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if len(adapter.batches) != 1 || len(adapter.batches[0]) != 2 {
		t.Fatalf("batches = %+v, want one batch of 2", adapter.batches)
	}
}

func TestDurable_FlushSendsPartialBatch(t *testing.T) {
	adapter := &fakeAdapter{}
	d := NewDurable(DurableConfig{BatchSize: 10, FlushInterval: time.Hour}, adapter, discardLogger())

	d.Emit(context.Background(), models.Event{EventID: "1"})
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if len(adapter.batches) != 1 || len(adapter.batches[0]) != 1 {
		t.Fatalf("batches = %+v, want one batch of 1", adapter.batches)
	}
}

func TestDurable_RetriesThenSucceeds(t *testing.T) {
	adapter := &fakeAdapter{failCount: 2}
	d := NewDurable(DurableConfig{BatchSize: 1, MaxRetries: 3, RetryDelay: time.Millisecond}, adapter, discardLogger())

	d.Emit(context.Background(), models.Event{EventID: "1"})

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if len(adapter.batches) != 1 {
		t.Fatalf("batches = %+v, want eventual success after retries", adapter.batches)
	}
}

func TestDurable_DropsBatchAfterExhaustingRetries(t *testing.T) {
	adapter := &fakeAdapter{failCount: 100}
	d := NewDurable(DurableConfig{BatchSize: 1, MaxRetries: 2, RetryDelay: time.Millisecond}, adapter, discardLogger())

	d.Emit(context.Background(), models.Event{EventID: "1"})

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if len(adapter.batches) != 0 {
		t.Errorf("batches = %+v, want none published after exhausting retries", adapter.batches)
	}
}
