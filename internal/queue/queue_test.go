package queue

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/griffin-monitoring/griffin/internal/models"
)

func newJob(location string) *models.Job {
	return &models.Job{
		ID:          ulid.Make().String(),
		Kind:        models.JobKindExecutePlan,
		Status:      models.JobStatusPending,
		MaxAttempts: 3,
		AvailableAt: time.Now(),
		Location:    location,
		CreatedAt:   time.Now(),
	}
}

func TestMemory_ClaimRespectsLocation(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	eu := newJob("eu-west")
	us := newJob("us-east")
	if err := q.Enqueue(ctx, eu); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(ctx, us); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, err := q.Claim(ctx, "us-east", time.Minute, "worker-1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if claimed == nil || claimed.ID != us.ID {
		t.Fatalf("claimed = %+v, want job %s", claimed, us.ID)
	}
}

func TestMemory_ClaimExcludesLockedJobs(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	job := newJob("local")
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if _, err := q.Claim(ctx, "local", time.Minute, "worker-1"); err != nil {
		t.Fatalf("first Claim() error = %v", err)
	}

	second, err := q.Claim(ctx, "local", time.Minute, "worker-2")
	if err != nil {
		t.Fatalf("second Claim() error = %v", err)
	}
	if second != nil {
		t.Errorf("second Claim() = %+v, want nil (already leased)", second)
	}
}

func TestMemory_AcknowledgeCompletesJob(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	job := newJob("local")
	_ = q.Enqueue(ctx, job)
	_, _ = q.Claim(ctx, "local", time.Minute, "worker-1")

	if err := q.Acknowledge(ctx, job.ID); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	claimed, err := q.Claim(ctx, "local", time.Minute, "worker-2")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if claimed != nil {
		t.Errorf("Claim() after Acknowledge = %+v, want nil", claimed)
	}
}

func TestMemory_FailReschedulesUntilAttemptsExhausted(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	job := newJob("local")
	job.MaxAttempts = 2
	_ = q.Enqueue(ctx, job)

	_, _ = q.Claim(ctx, "local", time.Minute, "worker-1")
	now := time.Now()
	if err := q.Fail(ctx, job.ID, now); err != nil {
		t.Fatalf("first Fail() error = %v", err)
	}

	q.mu.Lock()
	attempts := q.jobs[job.ID].Attempts
	status := q.jobs[job.ID].Status
	q.mu.Unlock()
	if attempts != 1 || status != models.JobStatusPending {
		t.Fatalf("after first failure: attempts=%d status=%s, want 1/PENDING", attempts, status)
	}

	_, _ = q.Claim(ctx, "local", time.Minute, "worker-1")
	if err := q.Fail(ctx, job.ID, now); err != nil {
		t.Fatalf("second Fail() error = %v", err)
	}

	q.mu.Lock()
	status = q.jobs[job.ID].Status
	q.mu.Unlock()
	if status != models.JobStatusFailed {
		t.Errorf("status = %s, want FAILED after exhausting attempts", status)
	}
}

func TestMemory_RecoverStaleReturnsExpiredLeases(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	job := newJob("local")
	_ = q.Enqueue(ctx, job)
	_, _ = q.Claim(ctx, "local", -time.Minute, "worker-1") // already-expired lease

	n, err := q.RecoverStale(ctx, time.Now())
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("RecoverStale() = %d, want 1", n)
	}

	claimed, err := q.Claim(ctx, "local", time.Minute, "worker-2")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if claimed == nil {
		t.Error("Claim() after RecoverStale = nil, want the recovered job")
	}
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 5 * time.Minute},
	}
	for _, c := range cases {
		if got := Backoff(c.attempt); got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
