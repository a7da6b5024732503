// Package cache implements the two-layer contact cache: a per-user history
// that turns repeat enrichments free, and a global fingerprint store that
// lets any user benefit from another user's prior enrichment without a new
// provider call. Redis backs the hot path; Postgres is the source of truth.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/captely/core/internal/db"
)

const (
	hotTTL          = 10 * time.Minute
	redisKeyPrefix  = "captely:cache:"
)

// Lookup describes the outcome of consulting the cache for a fingerprint,
// mirroring spec §4.3 step 1's branching.
type Lookup struct {
	Hit            bool
	UserDuplicate  bool // true: user already paid for this fingerprint
	Email          string
	Phone          string
	Confidence     float64
	SourceProvider string
}

// Store is the two-layer cache: Redis hot path in front of the Postgres
// global_cache/user_contact_history tables, following the Redis-then-DB
// fallback idiom used for alert deduplication in the teacher.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
	hits   *prometheus.CounterVec
}

// NewStore creates a cache Store. hits may be nil in tests.
func NewStore(rdb *redis.Client, logger *slog.Logger, hits *prometheus.CounterVec) *Store {
	return &Store{rdb: rdb, logger: logger, hits: hits}
}

func redisKey(fingerprint string) string {
	return redisKeyPrefix + fingerprint
}

// Lookup checks the user's history first (free reuse), then the global
// cache (spec §4.3 step 1). dbtx may be a pool connection or a
// transaction; Lookup itself opens no transaction.
func (s *Store) Lookup(ctx context.Context, dbtx db.DBTX, userID uuid.UUID, fingerprint string) (Lookup, error) {
	q := db.New(dbtx)

	if _, err := q.GetUserContactHistory(ctx, userID, fingerprint); err == nil {
		entry, gerr := s.getGlobal(ctx, q, fingerprint)
		if gerr != nil {
			return Lookup{}, gerr
		}
		s.observe("user_duplicate")
		return Lookup{
			Hit: true, UserDuplicate: true,
			Email: strVal(entry.Email), Phone: strVal(entry.Phone),
			Confidence: entry.Confidence, SourceProvider: entry.SourceProvider,
		}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Lookup{}, fmt.Errorf("checking user contact history: %w", err)
	}

	entry, err := s.getGlobal(ctx, q, fingerprint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.observe("miss")
			return Lookup{}, nil
		}
		return Lookup{}, err
	}

	s.observe("global")
	return Lookup{
		Hit: true, UserDuplicate: false,
		Email: strVal(entry.Email), Phone: strVal(entry.Phone),
		Confidence: entry.Confidence, SourceProvider: entry.SourceProvider,
	}, nil
}

// getGlobal reads the global cache entry, preferring the Redis hot path and
// warming it on a DB hit, matching the teacher's Deduplicator.Check idiom.
func (s *Store) getGlobal(ctx context.Context, q *db.Queries, fingerprint string) (db.GlobalCacheEntry, error) {
	key := redisKey(fingerprint)
	if cached, err := s.rdb.HGetAll(ctx, key).Result(); err == nil && len(cached) > 0 {
		s.touchHit(ctx, q, fingerprint)
		return parseRedisEntry(fingerprint, cached), nil
	} else if err != nil && err != redis.Nil {
		s.logger.Warn("redis cache lookup failed, falling back to DB", "error", err, "fingerprint", fingerprint)
	}

	entry, err := q.GetGlobalCacheEntry(ctx, fingerprint)
	if err != nil {
		return db.GlobalCacheEntry{}, err
	}

	s.touchHit(ctx, q, fingerprint)
	s.warmRedis(ctx, entry)
	return entry, nil
}

// touchHit bumps the global_cache row's hit_count (spec §3 CacheEntry.hit_count)
// for a read, regardless of whether it was served from the Redis hot path or
// fell through to Postgres. Best-effort: a failure here never fails the lookup.
func (s *Store) touchHit(ctx context.Context, q *db.Queries, fingerprint string) {
	if err := q.TouchGlobalCacheHit(ctx, fingerprint); err != nil {
		s.logger.Warn("touching global cache hit_count failed", "error", err, "fingerprint", fingerprint)
	}
}

// RecordFirstSeen inserts the global cache entry and a user-history row for
// a brand-new enrichment, called by the Cascade Coordinator after a
// successful provider walk (spec §4.3 step 6).
func (s *Store) RecordFirstSeen(ctx context.Context, dbtx db.DBTX, userID, contactID uuid.UUID, fingerprint, email, phone string, confidence float64, sourceProvider string) error {
	q := db.New(dbtx)

	var emailPtr, phonePtr *string
	if email != "" {
		emailPtr = &email
	}
	if phone != "" {
		phonePtr = &phone
	}

	if err := q.UpsertGlobalCacheEntry(ctx, db.UpsertGlobalCacheEntryParams{
		Fingerprint: fingerprint, Email: emailPtr, Phone: phonePtr,
		Confidence: confidence, SourceProvider: sourceProvider,
	}); err != nil {
		return fmt.Errorf("recording global cache entry: %w", err)
	}

	if err := q.InsertUserContactHistory(ctx, userID, fingerprint, contactID); err != nil {
		return fmt.Errorf("recording user contact history: %w", err)
	}

	s.warmRedis(ctx, db.GlobalCacheEntry{
		Fingerprint: fingerprint, Email: emailPtr, Phone: phonePtr,
		Confidence: confidence, SourceProvider: sourceProvider,
	})
	return nil
}

// RecordUserDuplicate inserts only the user-history row, for the case where
// the global entry already existed and a new user is now consuming it.
func (s *Store) RecordUserDuplicate(ctx context.Context, dbtx db.DBTX, userID, contactID uuid.UUID, fingerprint string) error {
	q := db.New(dbtx)
	if err := q.InsertUserContactHistory(ctx, userID, fingerprint, contactID); err != nil {
		return fmt.Errorf("recording user contact history: %w", err)
	}
	return nil
}

func (s *Store) warmRedis(ctx context.Context, entry db.GlobalCacheEntry) {
	key := redisKey(entry.Fingerprint)
	fields := map[string]interface{}{
		"email":           strVal(entry.Email),
		"phone":           strVal(entry.Phone),
		"confidence":      entry.Confidence,
		"source_provider": entry.SourceProvider,
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		s.logger.Warn("failed to warm cache in redis", "error", err, "fingerprint", entry.Fingerprint)
		return
	}
	s.rdb.Expire(ctx, key, hotTTL)
}

func parseRedisEntry(fingerprint string, fields map[string]string) db.GlobalCacheEntry {
	entry := db.GlobalCacheEntry{Fingerprint: fingerprint, SourceProvider: fields["source_provider"]}
	if v := fields["email"]; v != "" {
		entry.Email = &v
	}
	if v := fields["phone"]; v != "" {
		entry.Phone = &v
	}
	fmt.Sscanf(fields["confidence"], "%f", &entry.Confidence)
	return entry
}

func (s *Store) observe(outcome string) {
	if s.hits == nil {
		return
	}
	s.hits.WithLabelValues(outcome).Inc()
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
