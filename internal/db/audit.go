package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertAuditLogEntryParams carries the fields needed to append an AuditLogEntry row.
type InsertAuditLogEntryParams struct {
	ID     uuid.UUID
	Owner  uuid.UUID
	JobID  *uuid.UUID
	Action string
	Detail json.RawMessage
}

// InsertAuditLogEntry appends one audit entry. Never updated or deleted.
func (q *Queries) InsertAuditLogEntry(ctx context.Context, arg InsertAuditLogEntryParams) (AuditLogEntry, error) {
	const query = `INSERT INTO audit_log (id, owner, job_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, owner, job_id, action, detail, created_at`

	detail := arg.Detail
	if len(detail) == 0 {
		detail = json.RawMessage(`{}`)
	}

	var e AuditLogEntry
	err := q.db.QueryRow(ctx, query, arg.ID, arg.Owner, arg.JobID, arg.Action, detail).Scan(
		&e.ID, &e.Owner, &e.JobID, &e.Action, &e.Detail, &e.CreatedAt,
	)
	if err != nil {
		return AuditLogEntry{}, fmt.Errorf("inserting audit log entry: %w", err)
	}
	return e, nil
}

// ListAuditLogByOwner returns the most recent audit entries for owner, newest first.
func (q *Queries) ListAuditLogByOwner(ctx context.Context, owner uuid.UUID, limit, offset int32) ([]AuditLogEntry, error) {
	const query = `SELECT id, owner, job_id, action, detail, created_at
		FROM audit_log WHERE owner = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := q.db.Query(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.Owner, &e.JobID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
