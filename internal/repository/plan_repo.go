package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// PostgresPlanRepository implements PlanRepository against a jobs/plans
// schema managed by internal/database/migrations.
type PostgresPlanRepository struct {
	db *sql.DB
}

// NewPostgresPlanRepository wraps an open *sql.DB.
func NewPostgresPlanRepository(db *sql.DB) *PostgresPlanRepository {
	return &PostgresPlanRepository{db: db}
}

func (r *PostgresPlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	definition, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("repository: encoding plan %s: %w", plan.ID, err)
	}
	locations, err := json.Marshal(plan.Locations)
	if err != nil {
		return fmt.Errorf("repository: encoding plan locations %s: %w", plan.ID, err)
	}

	var every *int
	var unit *string
	if plan.Frequency != nil {
		every = &plan.Frequency.Every
		u := string(plan.Frequency.Unit)
		unit = &u
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO plans (id, name, project, environment, version, frequency_every, frequency_unit, locations, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, plan.ID, plan.Name, plan.Project, plan.Environment, plan.Version, every, unit, locations, definition, now, now)
	if err != nil {
		return fmt.Errorf("repository: creating plan %s: %w", plan.ID, err)
	}
	return nil
}

func (r *PostgresPlanRepository) Update(ctx context.Context, plan *models.Plan) error {
	definition, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("repository: encoding plan %s: %w", plan.ID, err)
	}
	locations, err := json.Marshal(plan.Locations)
	if err != nil {
		return fmt.Errorf("repository: encoding plan locations %s: %w", plan.ID, err)
	}

	var every *int
	var unit *string
	if plan.Frequency != nil {
		every = &plan.Frequency.Every
		u := string(plan.Frequency.Unit)
		unit = &u
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE plans
		SET name = $1, project = $2, environment = $3, version = $4,
		    frequency_every = $5, frequency_unit = $6, locations = $7,
		    definition = $8, updated_at = $9
		WHERE id = $10
	`, plan.Name, plan.Project, plan.Environment, plan.Version, every, unit, locations, definition, time.Now(), plan.ID)
	if err != nil {
		return fmt.Errorf("repository: updating plan %s: %w", plan.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: updating plan %s: %w", plan.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("repository: plan %s not found", plan.ID)
	}
	return nil
}

func (r *PostgresPlanRepository) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	var definition []byte
	err := r.db.QueryRowContext(ctx, `SELECT definition FROM plans WHERE id = $1`, id).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: plan %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: fetching plan %s: %w", id, err)
	}

	var plan models.Plan
	if err := json.Unmarshal(definition, &plan); err != nil {
		return nil, fmt.Errorf("repository: decoding plan %s: %w", id, err)
	}
	return &plan, nil
}

// GetByName looks up a plan by its (project, name) pair, used by the
// GET /plans/by-name route. Returns the most recently created match if
// somehow more than one exists.
func (r *PostgresPlanRepository) GetByName(ctx context.Context, project, name string) (*models.Plan, error) {
	var definition []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT definition FROM plans WHERE project = $1 AND name = $2
		ORDER BY created_at DESC LIMIT 1
	`, project, name).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: plan %s/%s not found", project, name)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: fetching plan %s/%s: %w", project, name, err)
	}

	var plan models.Plan
	if err := json.Unmarshal(definition, &plan); err != nil {
		return nil, fmt.Errorf("repository: decoding plan %s/%s: %w", project, name, err)
	}
	return &plan, nil
}

// GetDue returns every plan whose schedule has come due, computed in SQL
// from frequency_every/frequency_unit against the plan's most recent run.
func (r *PostgresPlanRepository) GetDue(ctx context.Context) ([]*models.Plan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.definition
		FROM plans p
		WHERE p.frequency_every IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM runs r
			WHERE r.plan_id = p.id
			  AND r.started_at > now() - (p.frequency_every || ' ' || lower(p.frequency_unit) || 's')::interval
		  )
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: listing due plans: %w", err)
	}
	defer rows.Close()

	return scanPlans(rows)
}

func (r *PostgresPlanRepository) ListByProject(ctx context.Context, project string) ([]*models.Plan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT definition FROM plans WHERE project = $1 ORDER BY created_at`, project)
	if err != nil {
		return nil, fmt.Errorf("repository: listing plans for project %s: %w", project, err)
	}
	defer rows.Close()

	return scanPlans(rows)
}

func (r *PostgresPlanRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: deleting plan %s: %w", id, err)
	}
	return nil
}

func scanPlans(rows *sql.Rows) ([]*models.Plan, error) {
	var plans []*models.Plan
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, err
		}
		var plan models.Plan
		if err := json.Unmarshal(definition, &plan); err != nil {
			return nil, err
		}
		plans = append(plans, &plan)
	}
	return plans, rows.Err()
}
