// Package adapters implements events.Adapter for the durable event sink:
// an in-memory adapter for tests/local runs and a Kinesis adapter for
// production.
package adapters

import (
	"context"
	"sync"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// Memory stores every published batch for inspection. Used by tests and
// the CLI's `local run` mode, which has no real downstream consumer.
type Memory struct {
	mu    sync.Mutex
	batches [][]models.Event
}

// NewMemory returns an empty Memory adapter.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the batch and always succeeds.
func (m *Memory) Publish(_ context.Context, events []models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := append([]models.Event(nil), events...)
	m.batches = append(m.batches, batch)
	return nil
}

// Batches returns every batch published so far, in publish order.
func (m *Memory) Batches() [][]models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]models.Event(nil), m.batches...)
}

// Events flattens every published batch into a single ordered slice.
func (m *Memory) Events() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}
