package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx runs fn inside a transaction at the pool's default isolation level
// (atomicity of the ledger sequence relies on row locks), committing on success and
// rolling back on error or panic. Used by pkg/ledger to make the
// check-quota/decrement-balance/append-ledger-row sequence atomic.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(DBTX) error) (err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(tx)
	return err
}
