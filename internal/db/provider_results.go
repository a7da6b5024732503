package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertProviderResultParams carries the fields needed to append a ProviderResult row.
type InsertProviderResultParams struct {
	ID            uuid.UUID
	ContactID     uuid.UUID
	Provider      string
	Email         *string
	Phone         *string
	Confidence    float64
	EmailVerified bool
	PhoneVerified bool
	RawPayload    json.RawMessage
}

// InsertProviderResult appends a per-contact provider attempt. Never updated
// or deleted: the cascade's audit trail.
func (q *Queries) InsertProviderResult(ctx context.Context, arg InsertProviderResultParams) (ProviderResult, error) {
	const query = `INSERT INTO provider_results (
			id, contact_id, provider, email, phone, confidence, email_verified,
			phone_verified, raw_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING id, contact_id, provider, email, phone, confidence, email_verified,
			phone_verified, raw_payload, created_at`

	payload := arg.RawPayload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	var r ProviderResult
	err := q.db.QueryRow(ctx, query, arg.ID, arg.ContactID, arg.Provider, arg.Email, arg.Phone,
		arg.Confidence, arg.EmailVerified, arg.PhoneVerified, payload,
	).Scan(&r.ID, &r.ContactID, &r.Provider, &r.Email, &r.Phone, &r.Confidence, &r.EmailVerified,
		&r.PhoneVerified, &r.RawPayload, &r.CreatedAt)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("inserting provider result: %w", err)
	}
	return r, nil
}

// ListProviderResultsByContact returns all attempts for a contact, in the
// order providers were consulted.
func (q *Queries) ListProviderResultsByContact(ctx context.Context, contactID uuid.UUID) ([]ProviderResult, error) {
	const query = `SELECT id, contact_id, provider, email, phone, confidence, email_verified,
			phone_verified, raw_payload, created_at
		FROM provider_results WHERE contact_id = $1 ORDER BY created_at ASC`

	rows, err := q.db.Query(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("listing provider results: %w", err)
	}
	defer rows.Close()

	var out []ProviderResult
	for rows.Next() {
		var r ProviderResult
		if err := rows.Scan(&r.ID, &r.ContactID, &r.Provider, &r.Email, &r.Phone, &r.Confidence,
			&r.EmailVerified, &r.PhoneVerified, &r.RawPayload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning provider result row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
