package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

const DefaultBatchWorkers = 4

// RunControl lets callers stop a running batch. Both flags only stop new
// records from being dispatched; submitted ones always finish.
type RunControl struct {
	paused    atomic.Bool
	cancelled atomic.Bool
}

func (c *RunControl) Pause()  { c.paused.Store(true) }
func (c *RunControl) Cancel() { c.cancelled.Store(true) }

func (c *RunControl) stopped() bool {
	return c.paused.Load() || c.cancelled.Load()
}

// Progress is a snapshot of the executor's running counters.
type Progress struct {
	Processed   int64 `json:"processed"`
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	AmountCents int64 `json:"amount_cents"`
}

type runCounters struct {
	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	amount    atomic.Int64
}

func (c *runCounters) snapshot() Progress {
	return Progress{
		Processed:   c.processed.Load(),
		Succeeded:   c.succeeded.Load(),
		Failed:      c.failed.Load(),
		AmountCents: c.amount.Load(),
	}
}

// BatchExecutor submits validated records to the payment application
// service with bounded concurrency.
type BatchExecutor struct {
	applier application.PaymentApplier
	batches application.BatchRepository
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

func NewBatchExecutor(applier application.PaymentApplier, batches application.BatchRepository, workers int, logger *slog.Logger) *BatchExecutor {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	return &BatchExecutor{
		applier: applier,
		batches: batches,
		workers: workers,
		logger:  logger,
		now:     time.Now,
	}
}

func (e *BatchExecutor) WithClock(now func() time.Time) *BatchExecutor {
	e.now = now
	return e
}

// Run processes the pending records of a PROCESSING batch in file order. When ctrl or ctx stops it early, in-flight records drain and the
// batch ends PAUSED or CANCELLED; otherwise it ends COMPLETED.
func (e *BatchExecutor) Run(ctx context.Context, batch *domain.PaymentBatch, ctrl *RunControl) (Progress, error) {
	if batch.Status != domain.BatchProcessing {
		return Progress{}, domain.NewInvalidTransitionError("batch", string(batch.Status), "RUN")
	}
	if ctrl == nil {
		ctrl = &RunControl{}
	}

	pending := batch.Pending()
	counters := &runCounters{}
	e.logger.Info("batch run started", "batch_id", batch.ID, "pending", len(pending), "workers", e.workers)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, r := range pending {
		if ctrl.stopped() || ctx.Err() != nil {
			break
		}
		// g.Go blocks while every worker is busy, so a stop can land between
		// the check above and the goroutine starting.
		g.Go(func() error {
			if ctrl.stopped() || ctx.Err() != nil {
				return nil
			}
			e.process(ctx, batch.ID, r, counters)
			return nil
		})
	}
	_ = g.Wait()

	// Persisting the final state must survive a shutdown signal.
	persistCtx := context.WithoutCancel(ctx)
	now := e.now()
	var err error
	switch {
	case ctrl.cancelled.Load():
		err = batch.Cancel(now)
	case ctrl.paused.Load() || ctx.Err() != nil:
		err = batch.Pause(now)
	default:
		err = batch.Complete(now)
	}
	if err != nil {
		return counters.snapshot(), err
	}
	if err := e.batches.Update(persistCtx, batch); err != nil {
		return counters.snapshot(), fmt.Errorf("failed to persist batch: %w", err)
	}

	progress := counters.snapshot()
	e.logger.Info("batch run finished",
		"batch_id", batch.ID,
		"status", batch.Status,
		"processed", progress.Processed,
		"succeeded", progress.Succeeded,
		"failed", progress.Failed,
		"amount_cents", progress.AmountCents)
	return progress, nil
}

// process drives one record to COMPLETED or FAILED. Once submitted a record is
// never abandoned, so the submission ignores cancellation of ctx. A record
// already PROCESSING was cut off mid-submission and is sent again under the
// same idempotency key.
func (e *BatchExecutor) process(ctx context.Context, batchID string, r *domain.BatchRecord, counters *runCounters) {
	ctx = context.WithoutCancel(ctx)

	if r.Status == domain.RecordProcessing {
		e.logger.Warn("resubmitting interrupted batch record", "batch_id", batchID, "record_id", r.ID, "row", r.RowNumber)
	} else {
		if err := r.MarkProcessing(); err != nil {
			e.logger.Error("record not processable", "batch_id", batchID, "record_id", r.ID, "error", err)
			return
		}
		e.persistRecord(ctx, batchID, r)
	}

	start := time.Now()
	receipt, err := e.applier.Submit(ctx, application.PaymentSubmission{
		LoanID:         r.LoanRef,
		AmountCents:    r.AmountCents,
		Method:         r.Method,
		Account:        r.Account(),
		IdempotencyKey: ComputeHash(batchID + ":" + r.ID),
	})
	r.Latency = time.Since(start)

	if err != nil {
		_ = r.Fail(fmt.Sprintf("payment application failed: %v", err))
		counters.failed.Add(1)
		e.logger.Warn("batch record failed",
			"batch_id", batchID,
			"record_id", r.ID,
			"row", r.RowNumber,
			"category", application.CategorizeError(err),
			"error", err)
	} else {
		applied := receipt.AppliedCents
		if applied == 0 {
			applied = r.AmountCents
		}
		_ = r.Complete(domain.RecordResult{
			TransactionID:         receipt.TransactionID,
			AppliedCents:          applied,
			PrincipalCents:        receipt.PrincipalCents,
			InterestCents:         receipt.InterestCents,
			FeesCents:             receipt.FeesCents,
			ResultingBalanceCents: receipt.ResultingBalanceCents,
		})
		counters.succeeded.Add(1)
		counters.amount.Add(applied)
	}
	counters.processed.Add(1)
	e.persistRecord(ctx, batchID, r)
}

func (e *BatchExecutor) persistRecord(ctx context.Context, batchID string, r *domain.BatchRecord) {
	if err := e.batches.UpdateRecord(ctx, batchID, r); err != nil {
		e.logger.Error("failed to persist batch record",
			"batch_id", batchID,
			"record_id", r.ID,
			"status", r.Status,
			"error", err)
	}
}
