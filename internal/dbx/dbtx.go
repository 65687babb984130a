// Package dbx holds the small database helpers shared by the local key-value
// store and the remote change sink: the DBTX handle interface, transaction
// scoping, and goose-driven schema migrations.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of database/sql the repositories need.
// *sql.DB, *sql.Tx and *sql.Conn all satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner starts transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back when it returns an error or panics; a panic is
// re-raised after the rollback.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "INSERT ...")
//	    return err
//	})
func WithTx(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit tx: %w", cerr)
		}
	}()

	return fn(ctx, tx)
}
