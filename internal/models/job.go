package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a queued Job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// JobKind is the queue payload discriminant. Griffin currently only
// enqueues plan executions, but the field exists so new job kinds don't
// require a queue schema change.
type JobKind string

const (
	JobKindExecutePlan JobKind = "execute-plan"
)

// ExecutePlanPayload is the Data payload of a JobKindExecutePlan job.
type ExecutePlanPayload struct {
	PlanID        string    `json:"planId"`
	RunID         string    `json:"jobRunId"`
	Environment   string    `json:"environment"`
	ScheduledAt   time.Time `json:"scheduledAt"`
}

// Job is a unit of work in the durable queue. A job is claimable iff
// Status is PENDING, AvailableAt has passed, and LockedUntil is nil or
// has passed.
type Job struct {
	ID          string          `json:"id"`
	Kind        JobKind         `json:"kind"`
	Data        json.RawMessage `json:"data"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	AvailableAt time.Time       `json:"availableAt"`
	Location    string          `json:"location"`
	LockedBy    *string         `json:"lockedBy,omitempty"`
	LockedUntil *time.Time      `json:"lockedUntil,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Claimable reports whether the job can be handed out by claim(location)
// at instant now.
func (j *Job) Claimable(now time.Time) bool {
	if j.Status != JobStatusPending {
		return false
	}
	if j.AvailableAt.After(now) {
		return false
	}
	if j.LockedUntil != nil && j.LockedUntil.After(now) {
		return false
	}
	return true
}
