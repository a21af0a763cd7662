package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

// Tx is a transaction carried on a context. Only the call that began it owns it:
// Commit and Rollback on a joined transaction are no-ops, so helpers can call
// GetTx, defer Rollback and Commit without knowing whether a caller started one.
type Tx interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	IsOpen() bool
	// Owner reports whether this handle began the transaction.
	Owner() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx with ownership and closed-state tracking.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	state  *txState
	owner  bool
}

type txState struct {
	closed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
		state:  &txState{},
		owner:  true,
	}
}

// GetTx joins the open transaction on ctx or begins a new one and stores it on the
// returned context.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(*Transaction); ok && ctxTx.IsOpen() {
		return ctx, ctxTx.join(), nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

// WithTx runs fn inside the transaction on ctx or a new one. A new transaction is
// committed when fn succeeds and rolled back otherwise.
func WithTx(ctx context.Context, db DB, fn func(ctx context.Context, tx Tx) error) error {
	ctx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (t *Transaction) join() *Transaction {
	return &Transaction{Tx: t.Tx, logger: t.logger, state: t.state, owner: false}
}

func (t *Transaction) IsOpen() bool {
	return !t.state.closed
}

func (t *Transaction) Owner() bool {
	return t.owner
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.owner || t.state.closed {
		return nil
	}

	err := t.Tx.Rollback()
	t.state.closed = true
	if err != nil && err != sql.ErrTxDone {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if !t.owner || t.state.closed {
		return nil
	}

	err := t.Tx.Commit()
	t.state.closed = true
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
