package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// DurableConfig tunes a Durable sink's batching and retry behavior.
type DurableConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

// Durable batches events and hands batches to an Adapter, retrying a
// failed publish a bounded number of times before dropping the batch and
// logging it. Events within a batch preserve seq order; a batch flushes
// when it reaches BatchSize or FlushInterval elapses, whichever first.
type Durable struct {
	cfg     DurableConfig
	adapter Adapter
	logger  *slog.Logger

	mu      sync.Mutex
	pending []models.Event
	timer   *time.Timer
}

// NewDurable returns a Durable sink publishing through adapter.
func NewDurable(cfg DurableConfig, adapter Adapter, logger *slog.Logger) *Durable {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	return &Durable{cfg: cfg, adapter: adapter, logger: logger}
}

// Emit buffers the event, flushing synchronously once the batch reaches
// BatchSize. Emit never returns an error; adapter failures are retried
// internally and, on exhaustion, logged and dropped.
func (d *Durable) Emit(ctx context.Context, event models.Event) {
	d.mu.Lock()
	d.pending = append(d.pending, event)
	shouldFlush := len(d.pending) >= d.cfg.BatchSize
	d.armTimerLocked(ctx)
	d.mu.Unlock()

	if shouldFlush {
		_ = d.Flush(ctx)
	}
}

// armTimerLocked starts the flush-on-interval timer the first time a
// batch becomes non-empty. Must be called with d.mu held.
func (d *Durable) armTimerLocked(ctx context.Context) {
	if d.timer != nil {
		return
	}
	d.timer = time.AfterFunc(d.cfg.FlushInterval, func() {
		_ = d.Flush(ctx)
	})
}

// Flush publishes and clears the current batch, if any.
func (d *Durable) Flush(ctx context.Context) error {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	return d.publishWithRetry(ctx, batch)
}

func (d *Durable) publishWithRetry(ctx context.Context, batch []models.Event) error {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.RetryDelay):
			}
		}

		if err := d.adapter.Publish(ctx, batch); err != nil {
			lastErr = err
			d.logger.Warn("events: batch publish failed", "attempt", attempt+1, "size", len(batch), "err", err)
			continue
		}
		return nil
	}

	d.logger.Error("events: batch dropped after exhausting retries", "size", len(batch), "err", lastErr)
	return lastErr
}
