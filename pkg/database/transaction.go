package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Querier
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Savepoint runs fn inside a savepoint. A failing fn rolls back only its own
	// statements and leaves the surrounding transaction usable.
	Savepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

// Transaction is a struct that wraps the sqlx.Tx struct and provides additional functionality
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:       tx,
		logger:   logger,
		isClosed: false,
	}
}

// TxFromContext returns the open transaction bound to ctx, if any.
func TxFromContext(ctx context.Context) Tx {
	tx, ok := ctx.Value(txKey).(Tx)
	if ok && tx != nil && tx.IsOpen() {
		return tx
	}
	return nil
}

// GetTx reuses the transaction bound to ctx or begins a new one and binds it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return ctx, tx, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil // do nothing if already committed
	}

	err := t.Tx.Rollback()
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil // do nothing if already committed
	}

	err := t.Tx.Commit()
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	name := "sp_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	if _, err := t.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("error while creating savepoint: %w", err)
	}

	if fnErr := fn(ctx); fnErr != nil {
		if _, err := t.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			t.logger.WithContext(ctx).WithError(err).Error("error while rolling back to savepoint")
			return &SavepointError{Err: err}
		}
		return fnErr
	}

	if _, err := t.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return &SavepointError{Err: err}
	}
	return nil
}

// SavepointError means the transaction itself is no longer usable.
type SavepointError struct {
	Err error
}

func (e *SavepointError) Error() string {
	return "savepoint failed: " + e.Err.Error()
}

func (e *SavepointError) Unwrap() error {
	return e.Err
}
