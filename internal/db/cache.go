package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetGlobalCacheEntry looks up a fingerprint in the global cache. Returns
// (zero value, pgx.ErrNoRows) on miss so callers can distinguish miss from
// error with errors.Is.
func (q *Queries) GetGlobalCacheEntry(ctx context.Context, fingerprint string) (GlobalCacheEntry, error) {
	const query = `SELECT fingerprint, email, phone, confidence, source_provider, last_refreshed, hit_count
		FROM global_cache WHERE fingerprint = $1`

	var e GlobalCacheEntry
	err := q.db.QueryRow(ctx, query, fingerprint).Scan(
		&e.Fingerprint, &e.Email, &e.Phone, &e.Confidence, &e.SourceProvider, &e.LastRefreshed, &e.HitCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GlobalCacheEntry{}, pgx.ErrNoRows
		}
		return GlobalCacheEntry{}, fmt.Errorf("fetching global cache entry: %w", err)
	}
	return e, nil
}

// UpsertGlobalCacheEntryParams carries the fields to insert or refresh a
// global cache entry.
type UpsertGlobalCacheEntryParams struct {
	Fingerprint    string
	Email          *string
	Phone          *string
	Confidence     float64
	SourceProvider string
}

// UpsertGlobalCacheEntry inserts a new fingerprint or, on conflict, refreshes
// it with last-writer-wins semantics on last_refreshed and bumps hit_count.
func (q *Queries) UpsertGlobalCacheEntry(ctx context.Context, arg UpsertGlobalCacheEntryParams) error {
	const query = `INSERT INTO global_cache (fingerprint, email, phone, confidence, source_provider, last_refreshed, hit_count)
		VALUES ($1, $2, $3, $4, $5, now(), 1)
		ON CONFLICT (fingerprint) DO UPDATE SET
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			confidence = EXCLUDED.confidence,
			source_provider = EXCLUDED.source_provider,
			last_refreshed = now(),
			hit_count = global_cache.hit_count + 1`

	_, err := q.db.Exec(ctx, query, arg.Fingerprint, arg.Email, arg.Phone, arg.Confidence, arg.SourceProvider)
	if err != nil {
		return fmt.Errorf("upserting global cache entry: %w", err)
	}
	return nil
}

// TouchGlobalCacheHit bumps hit_count for a cache read without changing data.
func (q *Queries) TouchGlobalCacheHit(ctx context.Context, fingerprint string) error {
	const query = `UPDATE global_cache SET hit_count = hit_count + 1 WHERE fingerprint = $1`
	_, err := q.db.Exec(ctx, query, fingerprint)
	if err != nil {
		return fmt.Errorf("touching global cache hit: %w", err)
	}
	return nil
}

// GetUserContactHistory checks whether a user has previously consumed a
// fingerprint. Returns pgx.ErrNoRows on miss.
func (q *Queries) GetUserContactHistory(ctx context.Context, userID uuid.UUID, fingerprint string) (UserContactHistory, error) {
	const query = `SELECT user_id, fingerprint, contact_id, first_enriched_at
		FROM user_contact_history WHERE user_id = $1 AND fingerprint = $2`

	var h UserContactHistory
	err := q.db.QueryRow(ctx, query, userID, fingerprint).Scan(
		&h.UserID, &h.Fingerprint, &h.ContactID, &h.FirstEnrichedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserContactHistory{}, pgx.ErrNoRows
		}
		return UserContactHistory{}, fmt.Errorf("fetching user contact history: %w", err)
	}
	return h, nil
}

// InsertUserContactHistory records that a user has now paid for a fingerprint.
// Idempotent: a duplicate insert for the same (user, fingerprint) is ignored,
// since the cascade only reaches here once per fingerprint per user by design.
func (q *Queries) InsertUserContactHistory(ctx context.Context, userID uuid.UUID, fingerprint string, contactID uuid.UUID) error {
	const query = `INSERT INTO user_contact_history (user_id, fingerprint, contact_id, first_enriched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, fingerprint) DO NOTHING`

	_, err := q.db.Exec(ctx, query, userID, fingerprint, contactID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting user contact history: %w", err)
	}
	return nil
}
