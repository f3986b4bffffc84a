package engine

import (
	"context"
	"database/sql"
	"sync/atomic"
)

// Transaction is an explicit engine transaction. Reads given a nil
// *Transaction run in implicit auto-commit mode instead.
type Transaction struct {
	tx   *sql.Tx
	done atomic.Bool
}

// Begin starts an explicit transaction.
func (s *Session) Begin(ctx context.Context) (*Transaction, error) {
	if s.closed.Load() {
		return nil, errSessionClosed()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Transaction) Commit() error {
	t.done.Store(true)
	return t.tx.Commit()
}

// Rollback aborts the transaction. Rolling back a finished transaction is a
// no-op.
func (t *Transaction) Rollback() error {
	if !t.done.CompareAndSwap(false, true) {
		return nil
	}
	return t.tx.Rollback()
}

// RunInTransaction runs fn inside a transaction, committing when fn returns
// nil and rolling back otherwise.
func (s *Session) RunInTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
