package adapters

import (
	"context"
	"testing"

	"github.com/griffin-monitoring/griffin/internal/models"
)

func TestMemory_PublishAndInspect(t *testing.T) {
	m := NewMemory()

	if err := m.Publish(context.Background(), []models.Event{{EventID: "1"}, {EventID: "2"}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := m.Publish(context.Background(), []models.Event{{EventID: "3"}}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(m.Batches()) != 2 {
		t.Fatalf("len(Batches()) = %d, want 2", len(m.Batches()))
	}

	events := m.Events()
	if len(events) != 3 {
		t.Fatalf("len(Events()) = %d, want 3", len(events))
	}
	if events[0].EventID != "1" || events[2].EventID != "3" {
		t.Errorf("Events() = %+v, want in publish order", events)
	}
}
