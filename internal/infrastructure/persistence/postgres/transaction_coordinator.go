package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
)

// TransactionCoordinator manages transactions across the attempt and failure
// queue repositories.
type TransactionCoordinator struct {
	db *DB
}

func NewTransactionCoordinator(db *DB) *TransactionCoordinator {
	return &TransactionCoordinator{db: db}
}

// WithTransaction executes fn within a database transaction. The repositories
// fn receives run on that transaction.
func (tc *TransactionCoordinator) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, attempts application.AttemptRepository, failures application.FailureQueueRepository) error,
) error {
	return tc.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &AttemptRepository{q: tx}, &FailureQueueRepository{q: tx})
	})
}
