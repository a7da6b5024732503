package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateJobParams carries the fields needed to insert a Job.
type CreateJobParams struct {
	ID     uuid.UUID
	Owner  uuid.UUID
	Total  int32
	Origin JobOrigin
}

// CreateJob inserts a new job in state pending.
func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) (Job, error) {
	const query = `INSERT INTO jobs (id, owner, state, total, completed, origin, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, 0, $4, now(), now())
		RETURNING id, owner, state, total, completed, origin, created_at, updated_at`

	var j Job
	err := q.db.QueryRow(ctx, query, arg.ID, arg.Owner, arg.Total, arg.Origin).Scan(
		&j.ID, &j.Owner, &j.State, &j.Total, &j.Completed, &j.Origin, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return Job{}, fmt.Errorf("creating job: %w", err)
	}
	return j, nil
}

// GetJob fetches a job by id.
func (q *Queries) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	const query = `SELECT id, owner, state, total, completed, origin, created_at, updated_at
		FROM jobs WHERE id = $1`

	var j Job
	err := q.db.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.Owner, &j.State, &j.Total, &j.Completed, &j.Origin, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return Job{}, fmt.Errorf("fetching job: %w", err)
	}
	return j, nil
}

// ListJobsByOwnerParams filters ListJobsByOwner.
type ListJobsByOwnerParams struct {
	Owner  uuid.UUID
	State  *JobState
	Limit  int32
	Offset int32
}

// ListJobsByOwner returns jobs for an owner, newest first, optionally filtered by state.
func (q *Queries) ListJobsByOwner(ctx context.Context, arg ListJobsByOwnerParams) ([]Job, error) {
	const query = `SELECT id, owner, state, total, completed, origin, created_at, updated_at
		FROM jobs
		WHERE owner = $1 AND ($2::text IS NULL OR state = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	var stateFilter *string
	if arg.State != nil {
		s := string(*arg.State)
		stateFilter = &s
	}

	rows, err := q.db.Query(ctx, query, arg.Owner, stateFilter, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Owner, &j.State, &j.Total, &j.Completed, &j.Origin, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// IncrementJobCompleted atomically bumps a job's completed counter by one.
func (q *Queries) IncrementJobCompleted(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE jobs SET completed = completed + 1, updated_at = now() WHERE id = $1`
	_, err := q.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("incrementing job progress: %w", err)
	}
	return nil
}

// SetJobState transitions a job to a terminal or running state.
func (q *Queries) SetJobState(ctx context.Context, id uuid.UUID, state JobState) error {
	const query = `UPDATE jobs SET state = $2, updated_at = now() WHERE id = $1`
	_, err := q.db.Exec(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("setting job state: %w", err)
	}
	return nil
}

// GetPendingJobs returns jobs not yet in a terminal state, used to resume work
// after a restart.
func (q *Queries) GetPendingJobs(ctx context.Context) ([]Job, error) {
	const query = `SELECT id, owner, state, total, completed, origin, created_at, updated_at
		FROM jobs WHERE state IN ('pending', 'running') ORDER BY created_at ASC`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Owner, &j.State, &j.Total, &j.Completed, &j.Origin, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
