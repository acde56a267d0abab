// Package worker claims queued jobs for one location and drives them
// through the execution engine, recording results on their Run.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/griffin-monitoring/griffin/internal/engine"
	"github.com/griffin-monitoring/griffin/internal/httpclient"
	"github.com/griffin-monitoring/griffin/internal/metrics"
	"github.com/griffin-monitoring/griffin/internal/models"
	"github.com/griffin-monitoring/griffin/internal/queue"
	"github.com/griffin-monitoring/griffin/internal/repository"
	"github.com/griffin-monitoring/griffin/internal/secrets"
)

// Config holds worker tuning parameters.
type Config struct {
	Location            string
	PollInterval        time.Duration // base poll interval, reset after finding a job
	MaxPollInterval     time.Duration // backoff ceiling when idle
	Concurrency         int
	ShutdownGracePeriod time.Duration
	LeaseDuration       time.Duration
}

// Worker claims and executes jobs for one location.
type Worker struct {
	plans   repository.PlanRepository
	runs    repository.RunRepository
	queue   queue.Queue
	client  httpclient.Client
	secrets *secrets.Registry
	emitter engine.Emitter

	location            string
	basePollInterval    time.Duration
	maxPollInterval     time.Duration
	concurrency         int
	shutdownGracePeriod time.Duration
	leaseDuration       time.Duration

	workerID string

	stop         chan struct{}
	wg           sync.WaitGroup
	activeJobs   int64
	activeJobsMu sync.Mutex
	logger       *slog.Logger
}

// New constructs a Worker. Unset Config fields take the same defaults as
// the reference worker pool this package is modeled on.
func New(
	plans repository.PlanRepository,
	runs repository.RunRepository,
	q queue.Queue,
	client httpclient.Client,
	secretsRegistry *secrets.Registry,
	emitter engine.Emitter,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.ShutdownGracePeriod <= 0 {
		cfg.ShutdownGracePeriod = 5 * time.Minute
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		plans:               plans,
		runs:                runs,
		queue:               q,
		client:              client,
		secrets:             secretsRegistry,
		emitter:             emitter,
		location:            cfg.Location,
		basePollInterval:    cfg.PollInterval,
		maxPollInterval:     cfg.MaxPollInterval,
		concurrency:         cfg.Concurrency,
		shutdownGracePeriod: cfg.ShutdownGracePeriod,
		leaseDuration:       cfg.LeaseDuration,
		workerID:            fmt.Sprintf("worker-%s-%d", cfg.Location, time.Now().UnixNano()),
		stop:                make(chan struct{}),
		logger:              logger.With("component", "worker", "location", cfg.Location),
	}
}

// Start begins Concurrency poll loops and recovers any runs left RUNNING
// by an unclean shutdown.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting",
		"concurrency", w.concurrency,
		"base_poll_interval", w.basePollInterval,
		"max_poll_interval", w.maxPollInterval,
	)

	w.recoverStaleRuns(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i)
	}

	w.wg.Add(1)
	go w.metricsLoop(ctx)
}

func (w *Worker) metricsLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SampleQueueDepth(ctx)
			w.RecoverLeases(ctx)
		}
	}
}

// ActiveJobs returns the number of jobs currently being processed.
func (w *Worker) ActiveJobs() int64 {
	w.activeJobsMu.Lock()
	defer w.activeJobsMu.Unlock()
	return w.activeJobs
}

// Stop signals every poll loop to exit and waits up to
// ShutdownGracePeriod for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.logger.Info("stopping, waiting for active jobs", "grace_period", w.shutdownGracePeriod)
	close(w.stop)

	deadline := time.Now().Add(w.shutdownGracePeriod)
	for time.Now().Before(deadline) {
		if w.ActiveJobs() == 0 {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if remaining := w.ActiveJobs(); remaining > 0 {
		w.logger.Warn("shutdown grace period exceeded", "remaining_jobs", remaining)
		return
	}

	w.wg.Wait()
	w.logger.Info("stopped")
}

// recoverStaleRuns marks runs left RUNNING by a prior crashed worker as
// FAILED, so they don't linger forever. Jobs whose lease also expired are
// separately recovered by a lease-sweeper (see RecoverLeases).
func (w *Worker) recoverStaleRuns(ctx context.Context) {
	cutoff := time.Now().Add(-w.shutdownGracePeriod)
	stale, err := w.runs.ListStaleRunning(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to list stale running runs", "err", err)
		return
	}

	for _, run := range stale {
		now := time.Now()
		run.Status = models.RunStatusFailed
		run.CompletedAt = &now
		run.Errors = append(run.Errors, "worker restarted before the run completed")
		if err := w.runs.Update(ctx, run); err != nil {
			w.logger.Error("failed to mark stale run failed", "run_id", run.ID, "err", err)
			continue
		}
		w.logger.Warn("recovered stale running run", "run_id", run.ID, "plan_id", run.PlanID)
	}
}

// RecoverLeases reclaims jobs whose claim lease expired without
// acknowledgement, returning them to PENDING for another worker to pick
// up. Intended to be called periodically (e.g. alongside the scheduler
// tick) rather than only at boot.
func (w *Worker) RecoverLeases(ctx context.Context) {
	n, err := w.queue.RecoverStale(ctx, time.Now())
	if err != nil {
		w.logger.Error("failed to recover stale leases", "err", err)
		return
	}
	if n > 0 {
		w.logger.Info("recovered stale job leases", "count", n)
	}
}

// SampleQueueDepth publishes the current claimable job count for this
// worker's location to the queue depth gauge.
func (w *Worker) SampleQueueDepth(ctx context.Context) {
	n, err := w.queue.Depth(ctx, w.location)
	if err != nil {
		w.logger.Error("failed to sample queue depth", "err", err)
		return
	}
	metrics.QueueDepth.WithLabelValues(w.location).Set(float64(n))
}

func (w *Worker) runLoop(ctx context.Context, id int) {
	defer w.wg.Done()

	currentInterval := w.basePollInterval
	timer := time.NewTimer(currentInterval)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			found := w.processNext(ctx, id)
			if found {
				currentInterval = w.basePollInterval
			} else {
				currentInterval *= 2
				if currentInterval > w.maxPollInterval {
					currentInterval = w.maxPollInterval
				}
			}
			timer.Reset(currentInterval)
		}
	}
}

// processNext claims and runs the next available job for this worker's
// location. Returns true if a job was found.
func (w *Worker) processNext(ctx context.Context, loopID int) bool {
	job, err := w.queue.Claim(ctx, w.location, w.leaseDuration, w.workerID)
	if err != nil {
		w.logger.Error("failed to claim job", "loop_id", loopID, "err", err)
		return false
	}
	if job == nil {
		return false
	}

	w.activeJobsMu.Lock()
	w.activeJobs++
	w.activeJobsMu.Unlock()
	defer func() {
		w.activeJobsMu.Lock()
		w.activeJobs--
		w.activeJobsMu.Unlock()
	}()

	w.logger.Info("processing job", "job_id", job.ID, "kind", job.Kind)

	switch job.Kind {
	case models.JobKindExecutePlan:
		w.processExecutePlan(ctx, job)
	default:
		w.logger.Error("unknown job kind", "job_id", job.ID, "kind", job.Kind)
		if err := w.queue.Fail(ctx, job.ID, time.Now()); err != nil {
			w.logger.Error("failed to fail job", "job_id", job.ID, "err", err)
		}
	}

	return true
}

func (w *Worker) processExecutePlan(ctx context.Context, job *models.Job) {
	var payload models.ExecutePlanPayload
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		w.logger.Error("failed to decode job payload", "job_id", job.ID, "err", err)
		w.failJob(ctx, job)
		return
	}

	plan, err := w.plans.GetByID(ctx, payload.PlanID)
	if err != nil {
		w.logger.Error("failed to load plan", "job_id", job.ID, "plan_id", payload.PlanID, "err", err)
		w.failJob(ctx, job)
		return
	}

	run, err := w.runs.GetByID(ctx, payload.RunID)
	if err != nil {
		w.logger.Error("failed to load run", "job_id", job.ID, "run_id", payload.RunID, "err", err)
		w.failJob(ctx, job)
		return
	}

	run.Status = models.RunStatusRunning
	if err := w.runs.Update(ctx, run); err != nil {
		w.logger.Error("failed to mark run running", "run_id", run.ID, "err", err)
	}

	result, err := engine.Execute(ctx, engine.Input{
		Plan:        plan,
		ExecutionID: run.ID,
		Location:    w.location,
		HTTPClient:  w.client,
		Secrets:     w.secrets,
		Emitter:     w.emitter,
		Logger:      w.logger,
		OnComplete: func(s engine.Summary) {
			run.Status = s.Status
			completedAt := s.CompletedAt
			run.CompletedAt = &completedAt
			duration := s.DurationMs
			run.DurationMs = &duration
			success := s.Success
			run.Success = &success
			run.Errors = s.Errors
			if uerr := w.runs.Update(ctx, run); uerr != nil {
				w.logger.Error("failed to update run after completion", "run_id", run.ID, "err", uerr)
			}
		},
	})
	if err != nil {
		w.logger.Error("engine execution failed unexpectedly", "job_id", job.ID, "err", err)
		w.failJob(ctx, job)
		return
	}

	if !result.Success {
		w.failJob(ctx, job)
		return
	}

	if err := w.queue.Acknowledge(ctx, job.ID); err != nil {
		w.logger.Error("failed to acknowledge job", "job_id", job.ID, "err", err)
	}
}

func (w *Worker) failJob(ctx context.Context, job *models.Job) {
	if err := w.queue.Fail(ctx, job.ID, time.Now()); err != nil {
		w.logger.Error("failed to fail job", "job_id", job.ID, "err", err)
	}
}
