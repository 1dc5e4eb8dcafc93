package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// TxManager implements Transactor over ctx-bound database transactions.
type TxManager struct {
	*Repository
}

var _ Transactor = (*TxManager)(nil)

func NewTxManager(db database.DB, logger ectologger.Logger) *TxManager {
	return &TxManager{Repository: NewRepository(db, logger)}
}

// WithinTransaction joins the transaction already bound to ctx when there is one,
// leaving commit to its owner.
func (m *TxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "TxManager.WithinTransaction")
	defer span.End()

	if database.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	txCtx, tx, err := m.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(txCtx); rbErr != nil {
			m.logger.WithContext(ctx).WithError(rbErr).Error("failed to roll back after error")
		}
		return err
	}

	return tx.Commit(txCtx)
}

// WithinSavepoint runs fn directly when ctx carries no transaction.
func (m *TxManager) WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := database.TxFromContext(ctx)
	if tx == nil {
		return fn(ctx)
	}
	return tx.Savepoint(ctx, fn)
}
