package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateContactParams carries the fields needed to insert a pending Contact.
type CreateContactParams struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	FirstName     string
	LastName      string
	Position      *string
	Company       string
	CompanyDomain *string
	ProfileURL    *string
	Location      *string
	Industry      *string
}

// CreateContact inserts a new contact in state pending.
func (q *Queries) CreateContact(ctx context.Context, arg CreateContactParams) (Contact, error) {
	const query = `INSERT INTO contacts (
			id, job_id, first_name, last_name, position, company, company_domain,
			profile_url, location, industry, enrichment_status, credits_consumed,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', 0, now(), now())
		RETURNING id, job_id, first_name, last_name, position, company, company_domain,
			profile_url, location, industry, email, phone, enrichment_status,
			enrichment_provider, enrichment_score, email_verified, email_verification_score,
			email_verification_level, is_disposable, is_role_based, is_catchall, phone_type,
			phone_country, phone_verified, lead_score, email_reliability, failure_reason,
			credits_consumed, created_at, updated_at`

	var c Contact
	err := q.db.QueryRow(ctx, query,
		arg.ID, arg.JobID, arg.FirstName, arg.LastName, arg.Position, arg.Company,
		arg.CompanyDomain, arg.ProfileURL, arg.Location, arg.Industry,
	).Scan(&c.ID, &c.JobID, &c.FirstName, &c.LastName, &c.Position, &c.Company, &c.CompanyDomain,
		&c.ProfileURL, &c.Location, &c.Industry, &c.Email, &c.Phone, &c.EnrichmentStatus,
		&c.EnrichmentProvider, &c.EnrichmentScore, &c.EmailVerified, &c.EmailVerificationScore,
		&c.EmailVerificationLevel, &c.IsDisposable, &c.IsRoleBased, &c.IsCatchall, &c.PhoneType,
		&c.PhoneCountry, &c.PhoneVerified, &c.LeadScore, &c.EmailReliability, &c.FailureReason,
		&c.CreditsConsumed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Contact{}, fmt.Errorf("creating contact: %w", err)
	}
	return c, nil
}

// GetContact fetches a contact by id.
func (q *Queries) GetContact(ctx context.Context, id uuid.UUID) (Contact, error) {
	const query = `SELECT id, job_id, first_name, last_name, position, company, company_domain,
			profile_url, location, industry, email, phone, enrichment_status,
			enrichment_provider, enrichment_score, email_verified, email_verification_score,
			email_verification_level, is_disposable, is_role_based, is_catchall, phone_type,
			phone_country, phone_verified, lead_score, email_reliability, failure_reason,
			credits_consumed, created_at, updated_at
		FROM contacts WHERE id = $1`

	var c Contact
	err := q.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.JobID, &c.FirstName, &c.LastName, &c.Position,
		&c.Company, &c.CompanyDomain, &c.ProfileURL, &c.Location, &c.Industry, &c.Email, &c.Phone,
		&c.EnrichmentStatus, &c.EnrichmentProvider, &c.EnrichmentScore, &c.EmailVerified,
		&c.EmailVerificationScore, &c.EmailVerificationLevel, &c.IsDisposable, &c.IsRoleBased,
		&c.IsCatchall, &c.PhoneType, &c.PhoneCountry, &c.PhoneVerified, &c.LeadScore,
		&c.EmailReliability, &c.FailureReason, &c.CreditsConsumed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Contact{}, fmt.Errorf("fetching contact: %w", err)
	}
	return c, nil
}

// GetPendingContactsByJob returns contacts not yet in a terminal enrichment
// status, used both for initial dispatch and restart resumption.
func (q *Queries) GetPendingContactsByJob(ctx context.Context, jobID uuid.UUID) ([]Contact, error) {
	const query = `SELECT id, job_id, first_name, last_name, position, company, company_domain,
			profile_url, location, industry, email, phone, enrichment_status,
			enrichment_provider, enrichment_score, email_verified, email_verification_score,
			email_verification_level, is_disposable, is_role_based, is_catchall, phone_type,
			phone_country, phone_verified, lead_score, email_reliability, failure_reason,
			credits_consumed, created_at, updated_at
		FROM contacts WHERE job_id = $1 AND enrichment_status = 'pending'
		ORDER BY created_at ASC`

	rows, err := q.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing pending contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.JobID, &c.FirstName, &c.LastName, &c.Position, &c.Company,
			&c.CompanyDomain, &c.ProfileURL, &c.Location, &c.Industry, &c.Email, &c.Phone,
			&c.EnrichmentStatus, &c.EnrichmentProvider, &c.EnrichmentScore, &c.EmailVerified,
			&c.EmailVerificationScore, &c.EmailVerificationLevel, &c.IsDisposable, &c.IsRoleBased,
			&c.IsCatchall, &c.PhoneType, &c.PhoneCountry, &c.PhoneVerified, &c.LeadScore,
			&c.EmailReliability, &c.FailureReason, &c.CreditsConsumed, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListContactsByJobParams drives cursor pagination over a job's contacts.
type ListContactsByJobParams struct {
	JobID  uuid.UUID
	After  *uuid.UUID
	Limit  int32
}

// ListContactsByJob returns a page of contacts ordered by id, for use with
// the keyset cursor pagination in internal/httpserver.
func (q *Queries) ListContactsByJob(ctx context.Context, arg ListContactsByJobParams) ([]Contact, error) {
	const query = `SELECT id, job_id, first_name, last_name, position, company, company_domain,
			profile_url, location, industry, email, phone, enrichment_status,
			enrichment_provider, enrichment_score, email_verified, email_verification_score,
			email_verification_level, is_disposable, is_role_based, is_catchall, phone_type,
			phone_country, phone_verified, lead_score, email_reliability, failure_reason,
			credits_consumed, created_at, updated_at
		FROM contacts
		WHERE job_id = $1 AND ($2::uuid IS NULL OR id > $2)
		ORDER BY id ASC
		LIMIT $3`

	rows, err := q.db.Query(ctx, query, arg.JobID, arg.After, arg.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.JobID, &c.FirstName, &c.LastName, &c.Position, &c.Company,
			&c.CompanyDomain, &c.ProfileURL, &c.Location, &c.Industry, &c.Email, &c.Phone,
			&c.EnrichmentStatus, &c.EnrichmentProvider, &c.EnrichmentScore, &c.EmailVerified,
			&c.EmailVerificationScore, &c.EmailVerificationLevel, &c.IsDisposable, &c.IsRoleBased,
			&c.IsCatchall, &c.PhoneType, &c.PhoneCountry, &c.PhoneVerified, &c.LeadScore,
			&c.EmailReliability, &c.FailureReason, &c.CreditsConsumed, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateContactEnrichment persists the cascade's outcome for a contact,
// including verification and lead-scoring fields computed downstream.
func (q *Queries) UpdateContactEnrichment(ctx context.Context, c Contact) error {
	const query = `UPDATE contacts SET
			email = $2, phone = $3, enrichment_status = $4, enrichment_provider = $5,
			enrichment_score = $6, email_verified = $7, email_verification_score = $8,
			email_verification_level = $9, is_disposable = $10, is_role_based = $11,
			is_catchall = $12, phone_type = $13, phone_country = $14, phone_verified = $15,
			lead_score = $16, email_reliability = $17, failure_reason = $18,
			credits_consumed = $19, updated_at = now()
		WHERE id = $1`

	_, err := q.db.Exec(ctx, query,
		c.ID, c.Email, c.Phone, c.EnrichmentStatus, c.EnrichmentProvider, c.EnrichmentScore,
		c.EmailVerified, c.EmailVerificationScore, c.EmailVerificationLevel, c.IsDisposable,
		c.IsRoleBased, c.IsCatchall, c.PhoneType, c.PhoneCountry, c.PhoneVerified, c.LeadScore,
		c.EmailReliability, c.FailureReason, c.CreditsConsumed,
	)
	if err != nil {
		return fmt.Errorf("updating contact enrichment: %w", err)
	}
	return nil
}
