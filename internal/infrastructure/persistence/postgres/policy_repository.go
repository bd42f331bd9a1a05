package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

type PolicyRepository struct {
	db *DB
}

func NewPolicyRepository(db *DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func (r *PolicyRepository) List(ctx context.Context) ([]*domain.RetryPolicy, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+policyColumns+` FROM retry_policies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	policies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.RetryPolicy, error) {
		var m PolicyModel
		if err := row.Scan(m.fields()...); err != nil {
			return nil, err
		}
		return toPolicy(m), nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan policies: %w", err)
	}
	return policies, nil
}

func (r *PolicyRepository) FindByID(ctx context.Context, id string) (*domain.RetryPolicy, error) {
	var m PolicyModel
	err := r.db.Pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM retry_policies WHERE id = $1`, id).Scan(m.fields()...)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFoundError(domain.ErrPolicyNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}
	return toPolicy(m), nil
}

// Save inserts the policy or replaces an existing one with the same id.
func (r *PolicyRepository) Save(ctx context.Context, policy *domain.RetryPolicy) error {
	query := `
		INSERT INTO retry_policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			intervals_ns = EXCLUDED.intervals_ns,
			max_attempts = EXCLUDED.max_attempts,
			backoff_multiplier = EXCLUDED.backoff_multiplier,
			stop_on_success = EXCLUDED.stop_on_success,
			escalate_after_max_retries = EXCLUDED.escalate_after_max_retries,
			payment_methods = EXCLUDED.payment_methods,
			failure_reasons = EXCLUDED.failure_reasons,
			initial_delay_ns = EXCLUDED.initial_delay_ns,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
	`
	m := toPolicyModel(policy)
	if _, err := r.db.Pool.Exec(ctx, query,
		m.ID, m.Name, m.Enabled, m.IntervalsNs, m.MaxAttempts, m.BackoffMultiplier,
		m.StopOnSuccess, m.EscalateAfterMaxRetries, m.PaymentMethods, m.FailureReasons,
		m.InitialDelayNs, m.Priority, m.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (r *PolicyRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM retry_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError(domain.ErrPolicyNotFound, id)
	}
	return nil
}
