package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetBalanceForUpdate locks the user's balance row for the duration of the
// enclosing transaction. Callers MUST run this with a DBTX that is a
// transaction, never a bare pool connection, or the lock is meaningless.
func (q *Queries) GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (CreditBalance, error) {
	const query = `SELECT user_id, total_credits, used_credits, expired_credits, updated_at
		FROM credit_balance WHERE user_id = $1 FOR UPDATE`

	var b CreditBalance
	err := q.db.QueryRow(ctx, query, userID).Scan(
		&b.UserID, &b.TotalCredits, &b.UsedCredits, &b.ExpiredCredits, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditBalance{}, fmt.Errorf("no credit balance provisioned for user %s: %w", userID, err)
		}
		return CreditBalance{}, fmt.Errorf("locking balance: %w", err)
	}
	return b, nil
}

// ApplyBalanceDelta adds the given signed amount to used_credits (positive
// for consumption, negative for a refund). total_credits is not changed.
func (q *Queries) ApplyBalanceDelta(ctx context.Context, userID uuid.UUID, usedDelta float64) error {
	const query = `UPDATE credit_balance
		SET used_credits = used_credits + $2, updated_at = now()
		WHERE user_id = $1`
	_, err := q.db.Exec(ctx, query, userID, usedDelta)
	if err != nil {
		return fmt.Errorf("applying balance delta: %w", err)
	}
	return nil
}

// InsertLedgerEntryParams carries the fields needed to append a ledger row.
type InsertLedgerEntryParams struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ContactID *uuid.UUID
	Provider  *string
	Operation LedgerOperation
	Cost      float64
	Success   bool
	Details   json.RawMessage
}

// InsertLedgerEntry appends a row with a per-user monotonic sequence number.
// The sequence plus created_at gives the ledger's total order for a user,
// per the global ordering guarantee on ledger writes.
func (q *Queries) InsertLedgerEntry(ctx context.Context, arg InsertLedgerEntryParams) (LedgerEntry, error) {
	const query = `INSERT INTO credit_ledger (
			id, user_id, contact_id, provider, operation, cost, success, details, created_at, seq
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, now(),
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM credit_ledger WHERE user_id = $2)
		)
		RETURNING id, seq, user_id, contact_id, provider, operation, cost, success, details, created_at`

	details := arg.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	var e LedgerEntry
	err := q.db.QueryRow(ctx, query, arg.ID, arg.UserID, arg.ContactID, arg.Provider, arg.Operation,
		arg.Cost, arg.Success, details,
	).Scan(&e.ID, &e.Seq, &e.UserID, &e.ContactID, &e.Provider, &e.Operation, &e.Cost, &e.Success,
		&e.Details, &e.CreatedAt)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("inserting ledger entry: %w", err)
	}
	return e, nil
}

// SumLedgerCostForContact returns Σ cost over non-refund ledger rows for a
// contact, the invariant check for contacts.credits_consumed.
func (q *Queries) SumLedgerCostForContact(ctx context.Context, contactID uuid.UUID) (float64, error) {
	const query = `SELECT COALESCE(SUM(cost), 0) FROM credit_ledger
		WHERE contact_id = $1 AND operation != 'refund'`

	var sum float64
	if err := q.db.QueryRow(ctx, query, contactID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing ledger cost: %w", err)
	}
	return sum, nil
}

// GetQuotaState aggregates today/month/per-provider consumption from the
// ledger for a user. This is a derived projection, recomputable at any time;
// pkg/ledger may cache it with a short TTL.
func (q *Queries) GetQuotaState(ctx context.Context, userID uuid.UUID) (QuotaState, error) {
	const todayQuery = `SELECT COALESCE(SUM(cost), 0) FROM credit_ledger
		WHERE user_id = $1 AND operation IN ('enrichment', 'verification')
		AND created_at >= date_trunc('day', now())`
	const monthQuery = `SELECT COALESCE(SUM(cost), 0) FROM credit_ledger
		WHERE user_id = $1 AND operation IN ('enrichment', 'verification')
		AND created_at >= date_trunc('month', now())`
	const perProviderQuery = `SELECT provider, COALESCE(SUM(cost), 0) FROM credit_ledger
		WHERE user_id = $1 AND operation IN ('enrichment', 'verification')
		AND provider IS NOT NULL AND created_at >= date_trunc('month', now())
		GROUP BY provider`

	qs := QuotaState{UserID: userID, PerProviderMonthConsumed: map[string]float64{}}

	if err := q.db.QueryRow(ctx, todayQuery, userID).Scan(&qs.TodayConsumed); err != nil {
		return QuotaState{}, fmt.Errorf("summing today consumption: %w", err)
	}
	if err := q.db.QueryRow(ctx, monthQuery, userID).Scan(&qs.MonthConsumed); err != nil {
		return QuotaState{}, fmt.Errorf("summing month consumption: %w", err)
	}

	rows, err := q.db.Query(ctx, perProviderQuery, userID)
	if err != nil {
		return QuotaState{}, fmt.Errorf("summing per-provider consumption: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var provider string
		var cost float64
		if err := rows.Scan(&provider, &cost); err != nil {
			return QuotaState{}, fmt.Errorf("scanning per-provider row: %w", err)
		}
		qs.PerProviderMonthConsumed[provider] = cost
	}
	return qs, rows.Err()
}
