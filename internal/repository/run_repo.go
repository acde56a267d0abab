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

// PostgresRunRepository implements RunRepository.
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository wraps an open *sql.DB.
func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

func (r *PostgresRunRepository) Create(ctx context.Context, run *models.Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, plan_id, execution_group_id, location, environment, status, triggered_by, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.PlanID, run.ExecutionGroupID, run.Location, run.Environment, run.Status, run.TriggeredBy, run.StartedAt)
	if err != nil {
		return fmt.Errorf("repository: creating run %s: %w", run.ID, err)
	}
	return nil
}

func (r *PostgresRunRepository) Update(ctx context.Context, run *models.Run) error {
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("repository: encoding run errors %s: %w", run.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = $1, completed_at = $2, duration_ms = $3, success = $4, errors = $5
		WHERE id = $6
	`, run.Status, run.CompletedAt, run.DurationMs, run.Success, errorsJSON, run.ID)
	if err != nil {
		return fmt.Errorf("repository: updating run %s: %w", run.ID, err)
	}
	return nil
}

func (r *PostgresRunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, plan_id, execution_group_id, location, environment, status, triggered_by,
			started_at, completed_at, duration_ms, success, errors
		FROM runs WHERE id = $1
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: fetching run %s: %w", id, err)
	}
	return run, nil
}

func (r *PostgresRunRepository) ListByPlanID(ctx context.Context, planID string, limit, offset int) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, execution_group_id, location, environment, status, triggered_by,
			started_at, completed_at, duration_ms, success, errors
		FROM runs WHERE plan_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3
	`, planID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository: listing runs for plan %s: %w", planID, err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func (r *PostgresRunRepository) ListByExecutionGroupID(ctx context.Context, executionGroupID string) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, execution_group_id, location, environment, status, triggered_by,
			started_at, completed_at, duration_ms, success, errors
		FROM runs WHERE execution_group_id = $1 ORDER BY location
	`, executionGroupID)
	if err != nil {
		return nil, fmt.Errorf("repository: listing runs for execution group %s: %w", executionGroupID, err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func (r *PostgresRunRepository) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, execution_group_id, location, environment, status, triggered_by,
			started_at, completed_at, duration_ms, success, errors
		FROM runs WHERE status = 'RUNNING' AND started_at < $1
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("repository: listing stale running runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var errorsJSON []byte
	if err := row.Scan(
		&run.ID, &run.PlanID, &run.ExecutionGroupID, &run.Location, &run.Environment,
		&run.Status, &run.TriggeredBy, &run.StartedAt, &run.CompletedAt, &run.DurationMs,
		&run.Success, &errorsJSON,
	); err != nil {
		return nil, err
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func scanRuns(rows *sql.Rows) ([]*models.Run, error) {
	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
