package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

type SuspenseRepository struct {
	db *DB
}

func NewSuspenseRepository(db *DB) *SuspenseRepository {
	return &SuspenseRepository{db: db}
}

func (r *SuspenseRepository) Create(ctx context.Context, payment *domain.SuspensePayment) error {
	query := `
		INSERT INTO suspense_payments (` + suspenseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	m, err := toSuspenseModel(payment)
	if err != nil {
		return err
	}
	if _, err := r.db.Pool.Exec(ctx, query,
		m.ID, m.AmountCents, m.ReceivedAt, m.Method, m.ReferenceNumber, m.AccountNumber,
		m.RoutingNumber, m.CustomerName, m.CustomerEmail, m.CustomerPhone, m.Source, m.Status, m.ReasonCode,
		m.Notes, m.AssignedTo, m.Matches, m.Applied, m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create suspense payment: %w", err)
	}
	return nil
}

func (r *SuspenseRepository) FindByID(ctx context.Context, id string) (*domain.SuspensePayment, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+suspenseColumns+` FROM suspense_payments WHERE id = $1`, id)
	return scanSuspense(row, id)
}

// List returns payments in any of the given statuses, oldest receipt first.
func (r *SuspenseRepository) List(ctx context.Context, statuses ...domain.SuspenseStatus) ([]*domain.SuspensePayment, error) {
	filter := make([]string, len(statuses))
	for i, s := range statuses {
		filter[i] = string(s)
	}
	query := `
		SELECT ` + suspenseColumns + `
		FROM suspense_payments
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		ORDER BY received_at, id
	`
	rows, err := r.db.Pool.Query(ctx, query, filter)
	if err != nil {
		return nil, fmt.Errorf("query suspense payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.SuspensePayment, error) {
		var m SuspenseModel
		if err := row.Scan(m.fields()...); err != nil {
			return nil, err
		}
		return toSuspense(m)
	})
	if err != nil {
		return nil, fmt.Errorf("scan suspense payments: %w", err)
	}
	return payments, nil
}

func (r *SuspenseRepository) Modify(ctx context.Context, id string, fn func(*domain.SuspensePayment) error) (*domain.SuspensePayment, error) {
	var out *domain.SuspensePayment
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+suspenseColumns+` FROM suspense_payments WHERE id = $1 FOR UPDATE`, id)
		p, err := scanSuspense(row, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}

		m, err := toSuspenseModel(p)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE suspense_payments
			SET status = $2, reason_code = $3, notes = $4, assigned_to = $5, matches = $6,
				applied = $7, updated_at = $8
			WHERE id = $1
		`, m.ID, m.Status, m.ReasonCode, m.Notes, m.AssignedTo, m.Matches, m.Applied, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update suspense payment: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanSuspense(row pgx.Row, id string) (*domain.SuspensePayment, error) {
	var m SuspenseModel
	if err := row.Scan(m.fields()...); err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFoundError(domain.ErrSuspenseNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan suspense payment: %w", err)
	}
	return toSuspense(m)
}
