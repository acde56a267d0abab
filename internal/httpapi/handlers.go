package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/griffin-monitoring/griffin/internal/graph"
	"github.com/griffin-monitoring/griffin/internal/models"
	"github.com/griffin-monitoring/griffin/internal/queue"
	"github.com/griffin-monitoring/griffin/internal/repository"
)

// DBPinger is satisfied by *sql.DB. It's an interface so Readyz can be
// exercised in tests without a real database connection.
type DBPinger interface {
	Ping() error
}

// HealthOutput is the body of the docs-visible health endpoint.
type HealthOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the public, OpenAPI-documented health endpoint.
func HealthCheck(version string) func(context.Context, *struct{}) (*HealthOutput, error) {
	return func(_ context.Context, _ *struct{}) (*HealthOutput, error) {
		out := &HealthOutput{}
		out.Body.Status = "healthy"
		out.Body.Version = version
		return out, nil
	}
}

// LivezOutput is the body of the hidden Kubernetes liveness probe.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez answers the Kubernetes liveness probe: 200 iff the process is up.
func Livez(_ context.Context, _ *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// ReadyzHandler answers the Kubernetes readiness probe, pinging the
// database to confirm the process can actually serve traffic.
type ReadyzHandler struct {
	db DBPinger
}

func NewReadyzHandler(db DBPinger) *ReadyzHandler {
	return &ReadyzHandler{db: db}
}

type ReadyzOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func (h *ReadyzHandler) Readyz(_ context.Context, _ *struct{}) (*ReadyzOutput, error) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			return nil, huma.Error503ServiceUnavailable("database unavailable: " + err.Error())
		}
	}
	out := &ReadyzOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// PlanHandler serves the plan CRUD routes.
type PlanHandler struct {
	plans repository.PlanRepository
}

func NewPlanHandler(plans repository.PlanRepository) *PlanHandler {
	return &PlanHandler{plans: plans}
}

type CreatePlanInput struct {
	Body models.Plan
}

type PlanOutput struct {
	Body models.Plan
}

func (h *PlanHandler) Create(ctx context.Context, in *CreatePlanInput) (*PlanOutput, error) {
	plan := in.Body
	if plan.ID == "" {
		plan.ID = ulid.Make().String()
	}
	if _, err := graph.Build(&plan); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	if err := h.plans.Create(ctx, &plan); err != nil {
		return nil, huma.Error500InternalServerError("failed to store plan", err)
	}
	return &PlanOutput{Body: plan}, nil
}

type ListPlansInput struct {
	Project string `query:"project" required:"true" doc:"Project the plan belongs to."`
}

type ListPlansOutput struct {
	Body []*models.Plan
}

func (h *PlanHandler) List(ctx context.Context, in *ListPlansInput) (*ListPlansOutput, error) {
	plans, err := h.plans.ListByProject(ctx, in.Project)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list plans", err)
	}
	return &ListPlansOutput{Body: plans}, nil
}

type GetPlanByNameInput struct {
	Project string `query:"project" required:"true"`
	Name    string `query:"name" required:"true"`
}

func (h *PlanHandler) GetByName(ctx context.Context, in *GetPlanByNameInput) (*PlanOutput, error) {
	plan, err := h.plans.GetByName(ctx, in.Project, in.Name)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &PlanOutput{Body: *plan}, nil
}

type UpdatePlanInput struct {
	ID   string `path:"id"`
	Body models.Plan
}

func (h *PlanHandler) Update(ctx context.Context, in *UpdatePlanInput) (*PlanOutput, error) {
	plan := in.Body
	plan.ID = in.ID
	if _, err := graph.Build(&plan); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	if err := h.plans.Update(ctx, &plan); err != nil {
		return nil, huma.Error500InternalServerError("failed to update plan", err)
	}
	return &PlanOutput{Body: plan}, nil
}

type DeletePlanInput struct {
	ID string `path:"id"`
}

type DeletePlanOutput struct{}

func (h *PlanHandler) Delete(ctx context.Context, in *DeletePlanInput) (*DeletePlanOutput, error) {
	if err := h.plans.Delete(ctx, in.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete plan", err)
	}
	return &DeletePlanOutput{}, nil
}

// RunHandler serves the run listing, triggering, and patching routes.
type RunHandler struct {
	runs  repository.RunRepository
	plans repository.PlanRepository
	queue queue.Queue
}

func NewRunHandler(runs repository.RunRepository, plans repository.PlanRepository, q queue.Queue) *RunHandler {
	return &RunHandler{runs: runs, plans: plans, queue: q}
}

type ListRunsInput struct {
	PlanID string `query:"planId" required:"true"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

type ListRunsOutput struct {
	Body []*models.Run
}

func (h *RunHandler) List(ctx context.Context, in *ListRunsInput) (*ListRunsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	runs, err := h.runs.ListByPlanID(ctx, in.PlanID, limit, in.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list runs", err)
	}
	return &ListRunsOutput{Body: runs}, nil
}

type GetRunInput struct {
	ID string `path:"id"`
}

type RunOutput struct {
	Body models.Run
}

func (h *RunHandler) Get(ctx context.Context, in *GetRunInput) (*RunOutput, error) {
	run, err := h.runs.GetByID(ctx, in.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &RunOutput{Body: *run}, nil
}

type TriggerRunInput struct {
	PlanID string `path:"planId"`
}

type TriggerRunOutput struct {
	Body []*models.Run
}

// Trigger enqueues one Run and one Job per the plan's target locations,
// exactly like the scheduler's own tick-driven enqueuePlan, but tagged
// TriggerManual instead of TriggerScheduled.
func (h *RunHandler) Trigger(ctx context.Context, in *TriggerRunInput) (*TriggerRunOutput, error) {
	plan, err := h.plans.GetByID(ctx, in.PlanID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	executionGroupID := ulid.Make().String()
	now := time.Now()
	var created []*models.Run

	for _, location := range plan.TargetLocations() {
		runID := ulid.Make().String()
		run := &models.Run{
			ID:               runID,
			PlanID:           plan.ID,
			ExecutionGroupID: executionGroupID,
			Location:         location,
			Environment:      plan.Environment,
			Status:           models.RunStatusPending,
			TriggeredBy:      models.TriggerManual,
			StartedAt:        now,
		}
		if err := h.runs.Create(ctx, run); err != nil {
			return nil, huma.Error500InternalServerError("failed to create run", err)
		}

		payload, err := json.Marshal(models.ExecutePlanPayload{
			PlanID:      plan.ID,
			RunID:       runID,
			Environment: plan.Environment,
			ScheduledAt: now,
		})
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode job payload", err)
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
		if err := h.queue.Enqueue(ctx, job); err != nil {
			return nil, huma.Error500InternalServerError("failed to enqueue job", err)
		}

		created = append(created, run)
	}

	return &TriggerRunOutput{Body: created}, nil
}

type PatchRunInput struct {
	ID   string `path:"id"`
	Body struct {
		// Status may only be set to FAILED or TIMEOUT: a run can be
		// cancelled through this route, but not forced to COMPLETED or
		// handed back to PENDING/RUNNING out from under the worker
		// actually executing it.
		Status *models.RunStatus `json:"status,omitempty"`
	}
}

func (h *RunHandler) Patch(ctx context.Context, in *PatchRunInput) (*RunOutput, error) {
	run, err := h.runs.GetByID(ctx, in.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	if in.Body.Status != nil {
		switch *in.Body.Status {
		case models.RunStatusFailed, models.RunStatusTimeout:
			run.Status = *in.Body.Status
			completedAt := time.Now()
			run.CompletedAt = &completedAt
		default:
			return nil, huma.Error422UnprocessableEntity("status may only be set to FAILED or TIMEOUT to cancel a run")
		}
	}

	if err := h.runs.Update(ctx, run); err != nil {
		return nil, huma.Error500InternalServerError("failed to update run", err)
	}
	return &RunOutput{Body: *run}, nil
}
