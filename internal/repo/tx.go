package repo

import (
	"context"
	"database/sql"
)

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type sqlTxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) TxRunner {
	return &sqlTxRunner{db: db}
}

func (r *sqlTxRunner) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
