// Package scheduler ticks at a fixed interval, finds due plans, and fans
// each one out into one Run and one queued Job per target location.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/griffin-monitoring/griffin/internal/metrics"
	"github.com/griffin-monitoring/griffin/internal/models"
	"github.com/griffin-monitoring/griffin/internal/queue"
	"github.com/griffin-monitoring/griffin/internal/repository"
)

// Config tunes the scheduler's tick loop.
type Config struct {
	TickInterval time.Duration
}

// Scheduler periodically enqueues runs for every plan whose schedule has
// come due.
type Scheduler struct {
	plans repository.PlanRepository
	runs  repository.RunRepository
	queue queue.Queue

	tickInterval time.Duration
	logger       *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Scheduler. TickInterval defaults to 10s.
func New(plans repository.PlanRepository, runs repository.RunRepository, q queue.Queue, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		plans:        plans,
		runs:         runs,
		queue:        q,
		tickInterval: cfg.TickInterval,
		logger:       logger.With("component", "scheduler"),
		stop:         make(chan struct{}),
	}
}

// Start runs the tick loop in a goroutine until ctx is cancelled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting", "tick_interval", s.tickInterval)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop signals the tick loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Info("stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass: find due plans and enqueue one Run and
// Job per target location. Errors for one plan don't stop the others.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds()) }()

	due, err := s.plans.GetDue(ctx)
	if err != nil {
		s.logger.Error("failed to list due plans", "err", err)
		return
	}

	for _, plan := range due {
		if err := s.enqueuePlan(ctx, plan); err != nil {
			s.logger.Error("failed to enqueue plan", "plan_id", plan.ID, "err", err)
			metrics.SchedulerPlansEnqueued.WithLabelValues("error").Inc()
			continue
		}
		metrics.SchedulerPlansEnqueued.WithLabelValues("ok").Inc()
	}
}

func (s *Scheduler) enqueuePlan(ctx context.Context, plan *models.Plan) error {
	executionGroupID := ulid.Make().String()
	now := time.Now()

	for _, location := range plan.TargetLocations() {
		runID := ulid.Make().String()
		run := &models.Run{
			ID:               runID,
			PlanID:           plan.ID,
			ExecutionGroupID: executionGroupID,
			Location:         location,
			Environment:      plan.Environment,
			Status:           models.RunStatusPending,
			TriggeredBy:      models.TriggerScheduled,
			StartedAt:        now,
		}
		if err := s.runs.Create(ctx, run); err != nil {
			return fmt.Errorf("scheduler: creating run for plan %s at %s: %w", plan.ID, location, err)
		}

		payload, err := json.Marshal(models.ExecutePlanPayload{
			PlanID:      plan.ID,
			RunID:       runID,
			Environment: plan.Environment,
			ScheduledAt: now,
		})
		if err != nil {
			return fmt.Errorf("scheduler: encoding job payload for run %s: %w", runID, err)
		}

		job := &models.Job{
			ID:          ulid.Make().String(),
			Kind:        models.JobKindExecutePlan,
			Data:        payload,
			Status:      models.JobStatusPending,
			MaxAttempts: 3,
			AvailableAt: now,
			Location:    location,
			CreatedAt:   now,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("scheduler: enqueueing job for run %s: %w", runID, err)
		}
	}

	return nil
}
