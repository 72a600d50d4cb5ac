package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxFunc runs inside a transaction. exec is bound to the transaction.
type TxFunc = func(ctx context.Context, exec sqlx.ExtContext) error

// TxRunner executes units of work atomically.
type TxRunner struct {
	db *sqlx.DB
}

// NewTxRunner constructs a TxRunner.
func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

// WithinTx honours cancellation of ctx up to BEGIN. From then on the
// transaction runs on a context detached from the caller, so it either commits
// or rolls back as a whole.
func (r *TxRunner) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	txCtx := context.WithoutCancel(ctx)
	tx, err := r.db.BeginTxx(txCtx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(txCtx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
