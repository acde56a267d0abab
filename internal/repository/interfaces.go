// Package repository defines data-access interfaces for plans and runs,
// plus their Postgres implementations.
package repository

import (
	"context"
	"time"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// PlanRepository persists plan definitions.
type PlanRepository interface {
	Create(ctx context.Context, plan *models.Plan) error
	Update(ctx context.Context, plan *models.Plan) error
	GetByID(ctx context.Context, id string) (*models.Plan, error)
	GetByName(ctx context.Context, project, name string) (*models.Plan, error)
	GetDue(ctx context.Context) ([]*models.Plan, error)
	ListByProject(ctx context.Context, project string) ([]*models.Plan, error)
	Delete(ctx context.Context, id string) error
}

// RunRepository persists plan execution history.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	Update(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	ListByPlanID(ctx context.Context, planID string, limit, offset int) ([]*models.Run, error)
	ListByExecutionGroupID(ctx context.Context, executionGroupID string) ([]*models.Run, error)
	// ListStaleRunning returns RUNNING runs started before cutoff, used to
	// recover from an unclean worker shutdown on boot.
	ListStaleRunning(ctx context.Context, cutoff time.Time) ([]*models.Run, error)
}
