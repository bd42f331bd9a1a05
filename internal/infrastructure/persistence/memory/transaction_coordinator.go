package memory

import (
	"context"
	"maps"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
)

// TransactionCoordinator gives fn private copies of the attempt and failure
// queue maps and swaps them in only when fn succeeds. Both repositories stay
// locked for the duration, so fn must not call them directly.
type TransactionCoordinator struct {
	attempts *AttemptRepository
	failures *FailureQueueRepository
}

func NewTransactionCoordinator(attempts *AttemptRepository, failures *FailureQueueRepository) *TransactionCoordinator {
	return &TransactionCoordinator{attempts: attempts, failures: failures}
}

// WithTransaction relies on stored values never being mutated in place, so a
// shallow copy of each map is a consistent snapshot.
func (tc *TransactionCoordinator) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, attempts application.AttemptRepository, failures application.FailureQueueRepository) error,
) error {
	tc.attempts.mu.Lock()
	defer tc.attempts.mu.Unlock()
	tc.failures.mu.Lock()
	defer tc.failures.mu.Unlock()

	txAttempts := &AttemptRepository{attempts: maps.Clone(tc.attempts.attempts)}
	txFailures := &FailureQueueRepository{entries: maps.Clone(tc.failures.entries)}

	if err := fn(ctx, txAttempts, txFailures); err != nil {
		return err
	}

	tc.attempts.attempts = txAttempts.attempts
	tc.failures.entries = txFailures.entries
	return nil
}

var _ application.TransactionCoordinator = (*TransactionCoordinator)(nil)
