package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// AttemptRepository runs on the pool, or on a transaction when built by the
// TransactionCoordinator.
type AttemptRepository struct {
	q Executor
}

func NewAttemptRepository(db *DB) *AttemptRepository {
	return &AttemptRepository{q: db.Pool}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *domain.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	m, err := toAttemptModel(attempt)
	if err != nil {
		return err
	}
	if _, err := r.q.Exec(ctx, query,
		m.ID, m.LoanID, m.OriginalPaymentID, m.BorrowerName, m.AmountCents, m.Method, m.Account,
		m.AttemptNumber, m.MaxRetries, m.Status, m.PolicyID, m.ScheduledFor, m.ProcessedAt, m.NextRetryAt,
		m.CreatedAt, m.UpdatedAt, m.LastFailureReason, m.LastFailureCode, m.TransactionID,
		m.BorrowerNotified, m.Escalated, m.PolicyAnomaly, m.Metadata,
	); err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	row := r.q.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id)
	return scanAttempt(row, id)
}

func (r *AttemptRepository) Update(ctx context.Context, attempt *domain.PaymentAttempt) error {
	return r.update(ctx, r.q, attempt)
}

// List pages through attempts oldest first. An empty status matches all and a
// zero limit returns every row.
func (r *AttemptRepository) List(ctx context.Context, status domain.AttemptStatus, limit, offset int) ([]*domain.PaymentAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at, id
		LIMIT NULLIF($2::int, 0) OFFSET $3::int
	`
	return r.query(ctx, query, string(status), limit, offset)
}

// FindDue returns pending attempts whose due time has passed, earliest first.
func (r *AttemptRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE status = 'PENDING'
		  AND COALESCE(next_retry_at, scheduled_for) <= $1
		ORDER BY COALESCE(next_retry_at, scheduled_for), id
		LIMIT NULLIF($2::int, 0)
	`
	return r.query(ctx, query, now, limit)
}

func (r *AttemptRepository) FindPendingByOriginal(ctx context.Context, originalPaymentID string) ([]*domain.PaymentAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE original_payment_id = $1 AND status = 'PENDING'
		ORDER BY attempt_number
	`
	return r.query(ctx, query, originalPaymentID)
}

// Claim moves a PENDING attempt to PROCESSING with a conditional update, so
// exactly one of several concurrent callers wins.
func (r *AttemptRepository) Claim(ctx context.Context, id string, now time.Time) (*domain.PaymentAttempt, error) {
	query := `
		UPDATE payment_attempts
		SET status = 'PROCESSING', next_retry_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + attemptColumns

	var m AttemptModel
	err := r.q.QueryRow(ctx, query, id, now).Scan(m.fields()...)
	if err == nil {
		return toAttempt(m)
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to claim attempt: %w", err)
	}
	return nil, r.claimMiss(ctx, id)
}

// FindStale returns attempts stuck in PROCESSING since claimedBefore or
// earlier, oldest claim first.
func (r *AttemptRepository) FindStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*domain.PaymentAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE status = 'PROCESSING' AND updated_at <= $1
		ORDER BY updated_at, id
		LIMIT NULLIF($2::int, 0)
	`
	return r.query(ctx, query, claimedBefore, limit)
}

// ReclaimStale refreshes a stale claim with a conditional update, so only one
// sweeper resubmits it.
func (r *AttemptRepository) ReclaimStale(ctx context.Context, id string, claimedBefore, now time.Time) (*domain.PaymentAttempt, error) {
	query := `
		UPDATE payment_attempts
		SET updated_at = $3,
			metadata = metadata || jsonb_build_object($4::text, $5::text)
		WHERE id = $1 AND status = 'PROCESSING' AND updated_at <= $2
		RETURNING ` + attemptColumns

	var m AttemptModel
	err := r.q.QueryRow(ctx, query, id, claimedBefore, now, domain.MetaReclaimedAt, now.UTC().Format(time.RFC3339)).Scan(m.fields()...)
	if err == nil {
		return toAttempt(m)
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to reclaim attempt: %w", err)
	}
	return nil, r.claimMiss(ctx, id)
}

// claimMiss tells a missing attempt apart from one owned by someone else.
func (r *AttemptRepository) claimMiss(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_attempts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check attempt: %w", err)
	}
	if !exists {
		return domain.NewNotFoundError(domain.ErrAttemptNotFound, id)
	}
	return domain.NewAlreadyClaimedError(id)
}

// Modify locks the row, applies fn and writes the result in one transaction.
func (r *AttemptRepository) Modify(ctx context.Context, id string, fn func(*domain.PaymentAttempt) error) (*domain.PaymentAttempt, error) {
	var out *domain.PaymentAttempt
	err := withTx(ctx, r.q, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1 FOR UPDATE`, id)
		a, err := scanAttempt(row, id)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if err := r.update(ctx, tx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AttemptRepository) update(ctx context.Context, q Executor, attempt *domain.PaymentAttempt) error {
	query := `
		UPDATE payment_attempts
		SET status = $2, max_retries = $3, policy_id = $4, scheduled_for = $5, processed_at = $6,
			next_retry_at = $7, updated_at = $8, last_failure_reason = $9, last_failure_code = $10,
			transaction_id = $11, borrower_notified = $12, escalated = $13, policy_anomaly = $14,
			metadata = $15
		WHERE id = $1
	`
	m, err := toAttemptModel(attempt)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, query,
		m.ID, m.Status, m.MaxRetries, m.PolicyID, m.ScheduledFor, m.ProcessedAt,
		m.NextRetryAt, m.UpdatedAt, m.LastFailureReason, m.LastFailureCode,
		m.TransactionID, m.BorrowerNotified, m.Escalated, m.PolicyAnomaly,
		m.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError(domain.ErrAttemptNotFound, attempt.ID)
	}
	return nil
}

func (r *AttemptRepository) query(ctx context.Context, query string, args ...any) ([]*domain.PaymentAttempt, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.PaymentAttempt, error) {
		var m AttemptModel
		if err := row.Scan(m.fields()...); err != nil {
			return nil, err
		}
		return toAttempt(m)
	})
	if err != nil {
		return nil, fmt.Errorf("scan attempts: %w", err)
	}
	return attempts, nil
}

func scanAttempt(row pgx.Row, id string) (*domain.PaymentAttempt, error) {
	var m AttemptModel
	if err := row.Scan(m.fields()...); err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFoundError(domain.ErrAttemptNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan attempt: %w", err)
	}
	return toAttempt(m)
}
