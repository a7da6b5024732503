package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetSubscription reads the billing layer's currently active plan for a user.
// The core only reads this table; plan lifecycle (creation, upgrades,
// cancellation) belongs to the billing boundary.
func (q *Queries) GetSubscription(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	const query = `SELECT user_id, plan, daily_quota, monthly_quota, per_provider_monthly_quota, price_per_enrichment
		FROM subscriptions WHERE user_id = $1`

	var s Subscription
	err := q.db.QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.Plan, &s.DailyQuota, &s.MonthlyQuota, &s.PerProviderMonthlyQuota, &s.PricePerEnrichment,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, pgx.ErrNoRows
		}
		return Subscription{}, fmt.Errorf("fetching subscription: %w", err)
	}
	return s, nil
}

// ProvisionCreditBalance creates the zero-balance row for a new user. Idempotent.
func (q *Queries) ProvisionCreditBalance(ctx context.Context, userID uuid.UUID, totalCredits float64) error {
	const query = `INSERT INTO credit_balance (user_id, total_credits, used_credits, expired_credits, updated_at)
		VALUES ($1, $2, 0, 0, now())
		ON CONFLICT (user_id) DO NOTHING`

	_, err := q.db.Exec(ctx, query, userID, totalCredits)
	if err != nil {
		return fmt.Errorf("provisioning credit balance: %w", err)
	}
	return nil
}
