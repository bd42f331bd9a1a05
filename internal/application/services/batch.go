package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/google/uuid"
)

type batchRun struct {
	ctrl *RunControl
	done chan struct{}
}

// BatchService owns batch uploads and their background runs. At most one run
// per batch exists at a time.
type BatchService struct {
	batches   application.BatchRepository
	validator *BatchValidator
	executor  *BatchExecutor
	notifier  application.Notifier
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu     sync.Mutex
	runs   map[string]*batchRun
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBatchService(
	batches application.BatchRepository,
	validator *BatchValidator,
	executor *BatchExecutor,
	notifier application.Notifier,
	logger *slog.Logger,
) *BatchService {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchService{
		batches:   batches,
		validator: validator,
		executor:  executor,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		runs:      make(map[string]*batchRun),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *BatchService) WithClock(now func() time.Time) *BatchService {
	s.now = now
	s.validator.WithClock(now)
	s.executor.WithClock(now)
	return s
}

// Upload parses and validates a batch file and stores the result.
func (s *BatchService) Upload(ctx context.Context, fileName string, r io.Reader) (*domain.PaymentBatch, error) {
	rows, err := ParseBatchCSV(r)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	if len(rows) == 0 {
		return nil, application.NewInvalidInputError(fmt.Errorf("batch file %q contains no records", fileName))
	}

	id := s.newID()
	batch := domain.NewPaymentBatch(id, fileName, NewBatchRecords(id, rows), s.now())
	if err := s.validator.Validate(ctx, batch); err != nil {
		return nil, application.NewInternalError(err)
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, application.NewInternalError(err)
	}

	s.logger.Info("batch uploaded",
		"batch_id", batch.ID,
		"file", fileName,
		"records", batch.RecordCount,
		"valid", batch.ValidRecords,
		"invalid", batch.InvalidRecords)
	return batch, nil
}

// Validate parses and validates a file without storing it.
func (s *BatchService) Validate(ctx context.Context, fileName string, r io.Reader) (*domain.PaymentBatch, error) {
	rows, err := ParseBatchCSV(r)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	batch := domain.NewPaymentBatch("dry-run", fileName, NewBatchRecords("dry-run", rows), s.now())
	if err := s.validator.Validate(ctx, batch); err != nil {
		return nil, application.NewInternalError(err)
	}
	return batch, nil
}

func (s *BatchService) Get(ctx context.Context, id string) (*domain.PaymentBatch, error) {
	b, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return b, nil
}

func (s *BatchService) List(ctx context.Context, limit, offset int) ([]*domain.PaymentBatch, error) {
	batches, err := s.batches.List(ctx, pageLimit(limit), offset)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return batches, nil
}

// Start runs a VALIDATED or PAUSED batch in the background and returns it in
// PROCESSING.
func (s *BatchService) Start(ctx context.Context, id string) (*domain.PaymentBatch, error) {
	batch, run, err := s.begin(ctx, id, domain.BatchValidated, domain.BatchPaused)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.batches.FindByID(ctx, id)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.execute(s.ctx, batch, run)
	}()
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return snapshot, nil
}

// Resume continues a PAUSED batch from its next unprocessed record.
func (s *BatchService) Resume(ctx context.Context, id string) (*domain.PaymentBatch, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BatchPaused {
		return nil, application.NewInvalidStateError(
			domain.NewInvalidTransitionError("batch", string(b.Status), string(domain.BatchProcessing)))
	}
	return s.Start(ctx, id)
}

// Execute runs a batch in the caller's goroutine until it stops.
func (s *BatchService) Execute(ctx context.Context, id string) (*domain.PaymentBatch, Progress, error) {
	batch, run, err := s.begin(ctx, id, domain.BatchValidated, domain.BatchPaused)
	if err != nil {
		return nil, Progress{}, err
	}
	progress, err := s.execute(ctx, batch, run)
	if err != nil {
		return nil, progress, application.NewInternalError(err)
	}
	return batch, progress, nil
}

// Pause stops dispatching new records and waits for in-flight ones to finish.
func (s *BatchService) Pause(ctx context.Context, id string) (*domain.PaymentBatch, error) {
	if run := s.activeRun(id); run != nil {
		run.ctrl.Pause()
		if err := waitRun(ctx, run); err != nil {
			return nil, application.NewTimeoutError()
		}
		return s.Get(ctx, id)
	}

	// A PROCESSING batch without a run was interrupted, e.g. by a restart.
	return s.settle(ctx, id, func(b *domain.PaymentBatch) error {
		return b.Pause(s.now())
	})
}

// Cancel stops the batch for good. Records already submitted still finish.
func (s *BatchService) Cancel(ctx context.Context, id string) (*domain.PaymentBatch, error) {
	if run := s.activeRun(id); run != nil {
		run.ctrl.Cancel()
		if err := waitRun(ctx, run); err != nil {
			return nil, application.NewTimeoutError()
		}
		return s.Get(ctx, id)
	}
	return s.settle(ctx, id, func(b *domain.PaymentBatch) error {
		return b.Cancel(s.now())
	})
}

// RecoverInterrupted restarts every batch left PROCESSING without a run in
// this process, e.g. after a crash. Records cut off mid-submission are sent
// again under their original idempotency keys.
func (s *BatchService) RecoverInterrupted(ctx context.Context) (int, error) {
	var interrupted []string
	for offset := 0; ; offset += maxPageLimit {
		page, err := s.batches.List(ctx, maxPageLimit, offset)
		if err != nil {
			return 0, application.NewInternalError(err)
		}
		for _, b := range page {
			if b.Status == domain.BatchProcessing && s.activeRun(b.ID) == nil {
				interrupted = append(interrupted, b.ID)
			}
		}
		if len(page) < maxPageLimit {
			break
		}
	}

	recovered := 0
	for _, id := range interrupted {
		if _, err := s.Pause(ctx, id); err != nil {
			s.logger.Error("failed to settle interrupted batch", "batch_id", id, "error", err)
			continue
		}
		if _, err := s.Start(ctx, id); err != nil {
			s.logger.Error("failed to restart interrupted batch", "batch_id", id, "error", err)
			continue
		}
		s.logger.Warn("interrupted batch restarted", "batch_id", id)
		recovered++
	}
	return recovered, nil
}

// Export writes the batch's per-record outcomes as CSV.
func (s *BatchService) Export(ctx context.Context, id string, w io.Writer) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := WriteBatchCSV(w, b); err != nil {
		return application.NewInternalError(err)
	}
	return nil
}

// Shutdown pauses every running batch and waits for the runs to drain.
func (s *BatchService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, run := range s.runs {
		run.ctrl.Pause()
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin registers a run and moves the batch to PROCESSING.
func (s *BatchService) begin(ctx context.Context, id string, from ...domain.BatchStatus) (*domain.PaymentBatch, *batchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.runs[id]; running {
		return nil, nil, application.NewBatchRunningError(id)
	}
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, nil, mapServiceError(err)
	}
	if !slices.Contains(from, batch.Status) {
		return nil, nil, application.NewInvalidStateError(
			domain.NewInvalidTransitionError("batch", string(batch.Status), string(domain.BatchProcessing)))
	}
	if err := batch.Start(s.now()); err != nil {
		return nil, nil, application.NewInvalidStateError(err)
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, nil, application.NewInternalError(err)
	}

	run := &batchRun{ctrl: &RunControl{}, done: make(chan struct{})}
	s.runs[id] = run
	return batch, run, nil
}

func (s *BatchService) execute(ctx context.Context, batch *domain.PaymentBatch, run *batchRun) (Progress, error) {
	defer func() {
		s.mu.Lock()
		delete(s.runs, batch.ID)
		s.mu.Unlock()
		close(run.done)
	}()

	progress, err := s.executor.Run(ctx, batch, run.ctrl)
	if err != nil {
		s.logger.Error("batch run failed", "batch_id", batch.ID, "error", err)
		return progress, err
	}
	if batch.Status == domain.BatchCompleted {
		notify(s.logger, s.notifier, "", application.NotificationEvent{
			Type:        application.EventBatchCompleted,
			SubjectID:   batch.ID,
			AmountCents: progress.AmountCents,
			OccurredAt:  s.now(),
			Details: map[string]string{
				"succeeded": fmt.Sprint(progress.Succeeded),
				"failed":    fmt.Sprint(progress.Failed),
			},
		})
	}
	return progress, nil
}

func (s *BatchService) activeRun(id string) *batchRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *BatchService) settle(ctx context.Context, id string, fn func(*domain.PaymentBatch) error) (*domain.PaymentBatch, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, mapServiceError(err)
	}
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, application.NewInternalError(err)
	}
	return b, nil
}

func waitRun(ctx context.Context, run *batchRun) error {
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
