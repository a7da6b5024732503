// Package db is a hand-written persistence layer following the same
// generated-query call pattern as sqlc output: a DBTX abstraction that either
// a pool or a transaction satisfies, and a Queries struct exposing one method
// per statement. No code generator runs here; the methods are written by hand
// against the schema in migrations/.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so callers can pass
// either a pool connection or an in-flight transaction to the same queries.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with the core's persisted entities.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given connection or transaction.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}
