package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// Postgres is a Queue backed by a jobs table, claimed via
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never race for
// the same row.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an already-open *sql.DB (pgx stdlib driver).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Enqueue(ctx context.Context, job *models.Job) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, data, status, attempts, max_attempts, available_at, location, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.ID, job.Kind, job.Data, job.Status, job.Attempts, job.MaxAttempts, job.AvailableAt, job.Location, job.CreatedAt)
	if err != nil {
		return &Error{Op: "enqueue", JobID: job.ID, Cause: err}
	}
	return nil
}

func (p *Postgres) Claim(ctx context.Context, location string, leaseDuration time.Duration, lockedBy string) (*models.Job, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &Error{Op: "claim", Cause: err}
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, kind, data, status, attempts, max_attempts, available_at, location, locked_by, locked_until, created_at
		FROM jobs
		WHERE location = $1
		  AND status = 'PENDING'
		  AND available_at <= now()
		  AND (locked_until IS NULL OR locked_until <= now())
		ORDER BY available_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, location)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "claim", Cause: err}
	}

	until := time.Now().Add(leaseDuration)
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'RUNNING', locked_by = $1, locked_until = $2 WHERE id = $3
	`, lockedBy, until, job.ID); err != nil {
		return nil, &Error{Op: "claim", JobID: job.ID, Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &Error{Op: "claim", JobID: job.ID, Cause: err}
	}

	job.Status = models.JobStatusRunning
	job.LockedBy = &lockedBy
	job.LockedUntil = &until
	return job, nil
}

func (p *Postgres) Acknowledge(ctx context.Context, jobID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'COMPLETED', locked_by = NULL, locked_until = NULL WHERE id = $1
	`, jobID)
	if err != nil {
		return &Error{Op: "acknowledge", JobID: jobID, Cause: err}
	}
	return checkRowsAffected(res, "acknowledge", jobID)
}

func (p *Postgres) Fail(ctx context.Context, jobID string, now time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "fail", JobID: jobID, Cause: err}
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Op: "fail", JobID: jobID, Cause: errNotFound}
	}
	if err != nil {
		return &Error{Op: "fail", JobID: jobID, Cause: err}
	}

	attempts++
	if attempts >= maxAttempts {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'FAILED', attempts = $1, locked_by = NULL, locked_until = NULL WHERE id = $2
		`, attempts, jobID)
	} else {
		nextAvailable := now.Add(Backoff(attempts))
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'PENDING', attempts = $1, available_at = $2, locked_by = NULL, locked_until = NULL WHERE id = $3
		`, attempts, nextAvailable, jobID)
	}
	if err != nil {
		return &Error{Op: "fail", JobID: jobID, Cause: err}
	}

	return tx.Commit()
}

func (p *Postgres) ExtendLease(ctx context.Context, jobID string, lockedBy string, until time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE jobs SET locked_until = $1 WHERE id = $2 AND locked_by = $3
	`, until, jobID, lockedBy)
	if err != nil {
		return &Error{Op: "extend_lease", JobID: jobID, Cause: err}
	}
	return checkRowsAffected(res, "extend_lease", jobID)
}

func (p *Postgres) RecoverStale(ctx context.Context, now time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'PENDING', locked_by = NULL, locked_until = NULL
		WHERE status = 'RUNNING' AND locked_until IS NOT NULL AND locked_until < $1
	`, now)
	if err != nil {
		return 0, &Error{Op: "recover_stale", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &Error{Op: "recover_stale", Cause: err}
	}
	return int(n), nil
}

func (p *Postgres) Depth(ctx context.Context, location string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT count(*) FROM jobs
		WHERE location = $1
		  AND status = 'PENDING'
		  AND available_at <= now()
		  AND (locked_until IS NULL OR locked_until <= now())
	`, location).Scan(&n)
	if err != nil {
		return 0, &Error{Op: "depth", Cause: err}
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.Job, error) {
	var j models.Job
	var data []byte
	if err := row.Scan(&j.ID, &j.Kind, &data, &j.Status, &j.Attempts, &j.MaxAttempts, &j.AvailableAt, &j.Location, &j.LockedBy, &j.LockedUntil, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Data = json.RawMessage(data)
	return &j, nil
}

func checkRowsAffected(res sql.Result, op, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &Error{Op: op, JobID: jobID, Cause: err}
	}
	if n == 0 {
		return &Error{Op: op, JobID: jobID, Cause: errNotFound}
	}
	return nil
}
