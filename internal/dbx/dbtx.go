// Package dbx lets a repository run several statements as one unit.  The
// batch saves (an import of ratings, a user with its role rows) go through
// WithTx so a failure part way leaves nothing behind.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is what the repositories need from *sql.DB and *sql.Tx alike, so a
// query helper runs the same inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx commits when fn succeeds and rolls back otherwise.  A panic in fn
// rolls back and keeps unwinding.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	done = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
