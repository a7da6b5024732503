// Package ledger implements the Credit Ledger: atomic balance and quota
// enforcement coupled to an append-only transaction log (spec §4.4). Every
// consumption is serialized per user via a row lock on credit_balance held
// for the duration of the check-and-decrement, so two concurrent workers
// charging the same user never race.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/captely/core/internal/db"
)

// RejectReason enumerates why a consumption was refused (spec §7 quota_exceeded).
type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectInsufficientBalance RejectReason = "insufficient_balance"
	RejectDailyCap         RejectReason = "daily_cap_exceeded"
	RejectMonthlyCap       RejectReason = "monthly_cap_exceeded"
	RejectProviderCap      RejectReason = "per_provider_cap_exceeded"
)

// Quotas is the set of ceilings a consumption is checked against. The
// engine builds one Quotas value from the configured defaults and applies it
// to every user; subscription plans are not read.
type Quotas struct {
	Daily            float64
	Monthly          float64
	PerProviderMonth float64
}

// ChargeParams describes a single consumption attempt.
type ChargeParams struct {
	UserID    uuid.UUID
	ContactID *uuid.UUID
	Provider  *string
	Operation db.LedgerOperation
	Cost      float64
	Details   map[string]any
}

// ChargeResult reports whether a charge succeeded and, on rejection, why.
type ChargeResult struct {
	Accepted       bool
	Reason         RejectReason
	RemainingAfter float64
}

// Ledger is the sole writer of credit_balance and credit_ledger.
type Ledger struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	writes  *prometheus.CounterVec
}

// NewLedger creates a Ledger bound to the given pool.
func NewLedger(pool *pgxpool.Pool, logger *slog.Logger, writes *prometheus.CounterVec) *Ledger {
	return &Ledger{pool: pool, logger: logger, writes: writes}
}

// PrecheckBalance verifies the user's balance covers the cascade's most
// expensive configured provider before any provider is called (spec §4.3
// step 2). It does not lock or write; the authoritative check happens at
// Charge time.
func (l *Ledger) PrecheckBalance(ctx context.Context, userID uuid.UUID, maxProviderCost float64) (bool, error) {
	_, _, remaining, err := l.Balance(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("reading balance for precheck: %w", err)
	}
	return remaining >= maxProviderCost, nil
}

// Charge performs the atomic unit described in spec §4.4: read balance and
// quotas, check, decrement, append ledger row — all inside one transaction
// guarded by a row lock on credit_balance. On rejection, no
// ledger row is written and the transaction is rolled back.
func (l *Ledger) Charge(ctx context.Context, quotas Quotas, p ChargeParams) (ChargeResult, error) {
	var result ChargeResult

	err := db.WithTx(ctx, l.pool, func(dbtx db.DBTX) error {
		q := db.New(dbtx)

		balance, err := q.GetBalanceForUpdate(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("locking balance: %w", err)
		}
		remaining := balance.TotalCredits - balance.UsedCredits
		if remaining < p.Cost {
			result = ChargeResult{Accepted: false, Reason: RejectInsufficientBalance, RemainingAfter: remaining}
			return nil
		}

		qs, err := q.GetQuotaState(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("reading quota state: %w", err)
		}
		if quotas.Daily > 0 && qs.TodayConsumed+p.Cost > quotas.Daily {
			result = ChargeResult{Accepted: false, Reason: RejectDailyCap, RemainingAfter: remaining}
			return nil
		}
		if quotas.Monthly > 0 && qs.MonthConsumed+p.Cost > quotas.Monthly {
			result = ChargeResult{Accepted: false, Reason: RejectMonthlyCap, RemainingAfter: remaining}
			return nil
		}
		if p.Provider != nil && quotas.PerProviderMonth > 0 {
			consumed := qs.PerProviderMonthConsumed[*p.Provider]
			if consumed+p.Cost > quotas.PerProviderMonth {
				result = ChargeResult{Accepted: false, Reason: RejectProviderCap, RemainingAfter: remaining}
				return nil
			}
		}

		if err := q.ApplyBalanceDelta(ctx, p.UserID, p.Cost); err != nil {
			return fmt.Errorf("applying balance delta: %w", err)
		}

		if _, err := q.InsertLedgerEntry(ctx, db.InsertLedgerEntryParams{
			ID:        uuid.New(),
			UserID:    p.UserID,
			ContactID: p.ContactID,
			Provider:  p.Provider,
			Operation: p.Operation,
			Cost:      p.Cost,
			Success:   true,
			Details:   marshalDetails(p.Details),
		}); err != nil {
			return fmt.Errorf("inserting ledger entry: %w", err)
		}

		l.observe(p.Operation, true)
		result = ChargeResult{Accepted: true, RemainingAfter: remaining - p.Cost}
		return nil
	})
	if err != nil {
		l.observe(p.Operation, false)
		return ChargeResult{}, err
	}
	if !result.Accepted {
		l.logger.Info("charge rejected", "user_id", p.UserID, "reason", result.Reason, "cost", p.Cost)
	}
	return result, nil
}

// RecordFailedAttempt appends a zero-cost, success=false ledger row for a
// provider call that failed non-retryably, per spec §4.3 step 3 ("do not
// charge credits for failed calls") while still keeping an audit trail.
func (l *Ledger) RecordFailedAttempt(ctx context.Context, userID uuid.UUID, contactID uuid.UUID, provider string, operation db.LedgerOperation) error {
	q := db.New(l.pool)
	_, err := q.InsertLedgerEntry(ctx, db.InsertLedgerEntryParams{
		ID: uuid.New(), UserID: userID, ContactID: &contactID, Provider: &provider,
		Operation: operation, Cost: 0, Success: false,
	})
	if err != nil {
		return fmt.Errorf("recording failed attempt: %w", err)
	}
	l.observe(operation, false)
	return nil
}

// Refund reverses a prior charge on the balance: used_credits drops by amount
// and a refund row with a positive cost is appended. Quota consumption is not
// restored: QuotaState sums only enrichment and verification rows, so the
// daily, monthly and per-provider totals are unchanged by a refund.
func (l *Ledger) Refund(ctx context.Context, userID uuid.UUID, contactID *uuid.UUID, amount float64, reason string) error {
	return db.WithTx(ctx, l.pool, func(dbtx db.DBTX) error {
		q := db.New(dbtx)
		if _, err := q.GetBalanceForUpdate(ctx, userID); err != nil {
			return fmt.Errorf("locking balance for refund: %w", err)
		}
		if err := q.ApplyBalanceDelta(ctx, userID, -amount); err != nil {
			return fmt.Errorf("applying refund delta: %w", err)
		}
		details := marshalDetails(map[string]any{"reason": reason})
		if _, err := q.InsertLedgerEntry(ctx, db.InsertLedgerEntryParams{
			ID: uuid.New(), UserID: userID, ContactID: contactID,
			Operation: db.OpRefund, Cost: amount, Success: true, Details: details,
		}); err != nil {
			return fmt.Errorf("inserting refund ledger entry: %w", err)
		}
		l.observe(db.OpRefund, true)
		return nil
	})
}

// QuotaState returns the user's current daily/monthly/per-provider consumption,
// recomputed from the ledger (spec §3 QuotaState is a derived projection).
func (l *Ledger) QuotaState(ctx context.Context, userID uuid.UUID) (db.QuotaState, error) {
	q := db.New(l.pool)
	qs, err := q.GetQuotaState(ctx, userID)
	if err != nil {
		return db.QuotaState{}, fmt.Errorf("reading quota state: %w", err)
	}
	return qs, nil
}

// PrecheckQuotas verifies a user's balance and daily/monthly ceilings before
// the Cascade Coordinator walks any provider (spec §4.3 step 2). It is a
// read-only, non-locking check; Charge is still the sole authoritative
// enforcement point and may reject even after a successful precheck.
func (l *Ledger) PrecheckQuotas(ctx context.Context, userID uuid.UUID, quotas Quotas, maxProviderCost float64) (bool, RejectReason, error) {
	_, _, remaining, err := l.Balance(ctx, userID)
	if err != nil {
		return false, RejectNone, err
	}
	if remaining < maxProviderCost {
		return false, RejectInsufficientBalance, nil
	}

	qs, err := l.QuotaState(ctx, userID)
	if err != nil {
		return false, RejectNone, err
	}
	if quotas.Daily > 0 && qs.TodayConsumed >= quotas.Daily {
		return false, RejectDailyCap, nil
	}
	if quotas.Monthly > 0 && qs.MonthConsumed >= quotas.Monthly {
		return false, RejectMonthlyCap, nil
	}
	return true, RejectNone, nil
}

// Balance returns the user's current balance without locking.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (total, used, remaining float64, err error) {
	const query = `SELECT total_credits, used_credits FROM credit_balance WHERE user_id = $1`
	row := l.pool.QueryRow(ctx, query, userID)
	if err := row.Scan(&total, &used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, 0, fmt.Errorf("no credit balance provisioned for user %s: %w", userID, err)
		}
		return 0, 0, 0, fmt.Errorf("reading balance: %w", err)
	}
	return total, used, total - used, nil
}

func (l *Ledger) observe(op db.LedgerOperation, success bool) {
	if l.writes == nil {
		return
	}
	l.writes.WithLabelValues(string(op), fmt.Sprintf("%t", success)).Inc()
}

func marshalDetails(details map[string]any) []byte {
	if len(details) == 0 {
		return nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return b
}
