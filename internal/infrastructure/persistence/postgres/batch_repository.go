package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// BatchRepository keeps the batch header in payment_batches and one row per
// record in batch_records, ordered by file position.
type BatchRepository struct {
	db *DB
}

func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.PaymentBatch) error {
	m, err := toBatchModel(batch)
	if err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_batches (`+batchColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`,
			m.ID, m.FileName, m.UploadedAt, m.RecordCount, m.DeclaredTotalCents, m.Status,
			m.ValidRecords, m.InvalidRecords, m.ProcessedRecords, m.Summary, m.Stats, m.StartedAt, m.CompletedAt, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}

		rows := make([][]any, 0, len(batch.Records))
		for i, rec := range batch.Records {
			rm, err := toRecordModel(rec)
			if err != nil {
				return err
			}
			rows = append(rows, []any{
				rm.ID, batch.ID, i, rm.RowNumber, rm.LoanRef, rm.AmountCents, rm.PaymentDate, rm.Method,
				rm.AccountNumber, rm.RoutingNumber, rm.Reference, rm.Fields, rm.Status, rm.Errors, rm.Result, rm.LatencyNanos,
			})
		}
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"batch_records"}, []string{
			"id", "batch_id", "position", "row_number", "loan_ref", "amount_cents", "payment_date", "method",
			"account_number", "routing_number", "reference", "fields", "status", "errors", "result", "latency_ns",
		}, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to insert batch records: %w", err)
		}
		return nil
	})
}

func (r *BatchRepository) FindByID(ctx context.Context, id string) (*domain.PaymentBatch, error) {
	var m BatchModel
	err := r.db.Pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM payment_batches WHERE id = $1`, id).Scan(m.fields()...)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFoundError(domain.ErrBatchNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}
	batch, err := toBatch(m)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM batch_records
		WHERE batch_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query batch records: %w", err)
	}
	batch.Records, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.BatchRecord, error) {
		var rm RecordModel
		if err := row.Scan(rm.fields()...); err != nil {
			return nil, err
		}
		return toRecord(rm)
	})
	if err != nil {
		return nil, fmt.Errorf("scan batch records: %w", err)
	}
	return batch, nil
}

// List returns batch headers newest first. Records are not loaded.
func (r *BatchRepository) List(ctx context.Context, limit, offset int) ([]*domain.PaymentBatch, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+batchColumns+`
		FROM payment_batches
		ORDER BY uploaded_at DESC, id
		LIMIT NULLIF($1::int, 0) OFFSET $2::int
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	batches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.PaymentBatch, error) {
		var m BatchModel
		if err := row.Scan(m.fields()...); err != nil {
			return nil, err
		}
		return toBatch(m)
	})
	if err != nil {
		return nil, fmt.Errorf("scan batches: %w", err)
	}
	return batches, nil
}

// Update writes the header and every record.
func (r *BatchRepository) Update(ctx context.Context, batch *domain.PaymentBatch) error {
	m, err := toBatchModel(batch)
	if err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_batches
			SET record_count = $2, declared_total_cents = $3, status = $4, valid_records = $5,
				invalid_records = $6, processed_records = $7, summary = $8, stats = $9,
				started_at = $10, completed_at = $11, updated_at = $12
			WHERE id = $1
		`,
			m.ID, m.RecordCount, m.DeclaredTotalCents, m.Status, m.ValidRecords,
			m.InvalidRecords, m.ProcessedRecords, m.Summary, m.Stats,
			m.StartedAt, m.CompletedAt, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update batch: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NewNotFoundError(domain.ErrBatchNotFound, batch.ID)
		}

		queued := &pgx.Batch{}
		for _, rec := range batch.Records {
			if err := queueRecordUpdate(queued, batch.ID, rec); err != nil {
				return err
			}
		}
		if err := tx.SendBatch(ctx, queued).Close(); err != nil {
			return fmt.Errorf("failed to update batch records: %w", err)
		}
		return nil
	})
}

// UpdateRecord writes one record and recomputes the header counters from the
// stored records.
func (r *BatchRepository) UpdateRecord(ctx context.Context, batchID string, record *domain.BatchRecord) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		queued := &pgx.Batch{}
		if err := queueRecordUpdate(queued, batchID, record); err != nil {
			return err
		}
		queued.Queue(`
			UPDATE payment_batches b
			SET valid_records = c.valid, invalid_records = c.invalid, processed_records = c.processed
			FROM (
				SELECT
					count(*) FILTER (WHERE status IN ('VALIDATED', 'PROCESSING', 'COMPLETED', 'FAILED')) AS valid,
					count(*) FILTER (WHERE status = 'REJECTED') AS invalid,
					count(*) FILTER (WHERE status IN ('COMPLETED', 'FAILED')) AS processed
				FROM batch_records
				WHERE batch_id = $1
			) c
			WHERE b.id = $1
		`, batchID)
		if err := tx.SendBatch(ctx, queued).Close(); err != nil {
			return fmt.Errorf("failed to update batch record: %w", err)
		}
		return nil
	})
}

func queueRecordUpdate(b *pgx.Batch, batchID string, rec *domain.BatchRecord) error {
	m, err := toRecordModel(rec)
	if err != nil {
		return err
	}
	b.Queue(`
		UPDATE batch_records
		SET loan_ref = $3, amount_cents = $4, payment_date = $5, method = $6, status = $7,
			errors = $8, result = $9, latency_ns = $10
		WHERE id = $1 AND batch_id = $2
	`, m.ID, batchID, m.LoanRef, m.AmountCents, m.PaymentDate, m.Method, m.Status, m.Errors, m.Result, m.LatencyNanos)
	return nil
}
