package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

type FailureQueueRepository struct {
	q Executor
}

func NewFailureQueueRepository(db *DB) *FailureQueueRepository {
	return &FailureQueueRepository{q: db.Pool}
}

func (r *FailureQueueRepository) Create(ctx context.Context, entry *domain.FailureQueueEntry) error {
	query := `
		INSERT INTO failure_queue (` + failureColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	m, err := toFailureEntryModel(entry)
	if err != nil {
		return err
	}
	if _, err := r.q.Exec(ctx, query,
		m.ID, m.AttemptID, m.OriginalPaymentID, m.LoanID, m.BorrowerName, m.AmountCents, m.Method,
		m.Account, m.FailureReason, m.FailureCode, m.FailedAt, m.RetryCount, m.NextRetryAt, m.Status, m.Escalated,
		m.LastContactAt, m.ResolvedBy, m.ResolvedAt, m.Notes, m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create failure queue entry: %w", err)
	}
	return nil
}

func (r *FailureQueueRepository) FindByID(ctx context.Context, id string) (*domain.FailureQueueEntry, error) {
	row := r.q.QueryRow(ctx, `SELECT `+failureColumns+` FROM failure_queue WHERE id = $1`, id)
	return scanFailureEntry(row, id)
}

// List returns entries newest first.
func (r *FailureQueueRepository) List(ctx context.Context, filter application.FailureFilter) ([]*domain.FailureQueueEntry, error) {
	query := `
		SELECT ` + failureColumns + `
		FROM failure_queue
		WHERE ($1::text = '' OR status = $1::text)
		  AND ($2::boolean IS NULL OR escalated = $2::boolean)
		ORDER BY created_at DESC, id
		LIMIT NULLIF($3::int, 0) OFFSET $4::int
	`
	rows, err := r.q.Query(ctx, query, string(filter.Status), filter.Escalated, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("query failure queue: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.FailureQueueEntry, error) {
		var m FailureEntryModel
		if err := row.Scan(m.fields()...); err != nil {
			return nil, err
		}
		return toFailureEntry(m)
	})
	if err != nil {
		return nil, fmt.Errorf("scan failure queue: %w", err)
	}
	return entries, nil
}

func (r *FailureQueueRepository) Modify(ctx context.Context, id string, fn func(*domain.FailureQueueEntry) error) (*domain.FailureQueueEntry, error) {
	var out *domain.FailureQueueEntry
	err := withTx(ctx, r.q, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+failureColumns+` FROM failure_queue WHERE id = $1 FOR UPDATE`, id)
		e, err := scanFailureEntry(row, id)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}

		m, err := toFailureEntryModel(e)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE failure_queue
			SET attempt_id = $2, retry_count = $3, next_retry_at = $4, status = $5, escalated = $6,
				last_contact_at = $7, resolved_by = $8, resolved_at = $9, notes = $10, updated_at = $11,
				failure_reason = $12, failure_code = $13, failed_at = $14
			WHERE id = $1
		`,
			m.ID, m.AttemptID, m.RetryCount, m.NextRetryAt, m.Status, m.Escalated,
			m.LastContactAt, m.ResolvedBy, m.ResolvedAt, m.Notes, m.UpdatedAt,
			m.FailureReason, m.FailureCode, m.FailedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update failure queue entry: %w", err)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanFailureEntry(row pgx.Row, id string) (*domain.FailureQueueEntry, error) {
	var m FailureEntryModel
	if err := row.Scan(m.fields()...); err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFoundError(domain.ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan failure queue entry: %w", err)
	}
	return toFailureEntry(m)
}
