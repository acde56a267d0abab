// Package queue implements Griffin's durable job queue: claimable,
// per-location work items with lease-based locking and exponential
// backoff on failure.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// Queue is what the scheduler and worker depend on. Implementations must
// make Claim safe for concurrent callers racing for the same job.
type Queue interface {
	// Enqueue inserts a new job in PENDING status.
	Enqueue(ctx context.Context, job *models.Job) error

	// Claim atomically locks and returns one claimable job for location,
	// or nil if none is available. The caller owns the lease until
	// Acknowledge, Fail, or the lease expires.
	Claim(ctx context.Context, location string, leaseDuration time.Duration, lockedBy string) (*models.Job, error)

	// Acknowledge marks job as completed, releasing its lease.
	Acknowledge(ctx context.Context, jobID string) error

	// Fail records a failed attempt. If attempts remain, the job is
	// rescheduled at now + Backoff(attempts); otherwise it is marked
	// FAILED permanently.
	Fail(ctx context.Context, jobID string, now time.Time) error

	// ExtendLease pushes a claimed job's lock further into the future,
	// for long-running work that outlives the original lease.
	ExtendLease(ctx context.Context, jobID string, lockedBy string, until time.Time) error

	// RecoverStale reclaims jobs whose lease expired without
	// acknowledgement or failure, returning them to PENDING.
	RecoverStale(ctx context.Context, now time.Time) (int, error)

	// Depth reports the number of claimable jobs currently waiting for
	// location, for queue-depth metrics.
	Depth(ctx context.Context, location string) (int, error)
}

// Error wraps a queue operation failure with the job ID it concerns.
type Error struct {
	Op    string
	JobID string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("queue: %s %s: %v", e.Op, e.JobID, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

const (
	backoffBase = time.Second
	backoffCap  = 5 * time.Minute
)

// Backoff computes the retry delay for the nth failed attempt (1-indexed):
// min(base*2^(n-1), cap).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}
