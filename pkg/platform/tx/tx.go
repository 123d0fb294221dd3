package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes a function as one unit of work: either every store write
// inside it commits, or none do.
type Runner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner runs the function inside a database/sql transaction, placed in
// context so stores enlist through From. A call made while a transaction is
// already open joins it instead of nesting.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(WithTx(ctx, txn)); err != nil {
		_ = txn.Rollback()
		return err
	}
	return txn.Commit()
}

// PassthroughRunner runs the function directly, for in-memory stores whose
// individual writes are already atomic. Callers must order their writes so
// that the fallible ones come first.
type PassthroughRunner struct{}

func (PassthroughRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
