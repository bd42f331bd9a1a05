package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/google/uuid"
)

// FailureQueueService handles agent actions on escalated payments.
type FailureQueueService struct {
	failures application.FailureQueueRepository
	attempts application.AttemptRepository
	tx       application.TransactionCoordinator
	policies *PolicyService
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewFailureQueueService(
	failures application.FailureQueueRepository,
	attempts application.AttemptRepository,
	tx application.TransactionCoordinator,
	policies *PolicyService,
	logger *slog.Logger,
) *FailureQueueService {
	return &FailureQueueService{
		failures: failures,
		attempts: attempts,
		tx:       tx,
		policies: policies,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *FailureQueueService) WithClock(now func() time.Time) *FailureQueueService {
	s.now = now
	return s
}

func (s *FailureQueueService) List(ctx context.Context, filter application.FailureFilter) ([]*domain.FailureQueueEntry, error) {
	filter.Limit = pageLimit(filter.Limit)
	entries, err := s.failures.List(ctx, filter)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return entries, nil
}

func (s *FailureQueueService) Get(ctx context.Context, id string) (*domain.FailureQueueEntry, error) {
	e, err := s.failures.FindByID(ctx, id)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return e, nil
}

func (s *FailureQueueService) RecordContact(ctx context.Context, id, agent, note string) (*domain.FailureQueueEntry, error) {
	return s.modify(ctx, id, func(e *domain.FailureQueueEntry) error {
		return e.RecordContact(agent, note, s.now())
	})
}

func (s *FailureQueueService) AddNote(ctx context.Context, id, agent, note string) (*domain.FailureQueueEntry, error) {
	return s.modify(ctx, id, func(e *domain.FailureQueueEntry) error {
		if note == "" {
			return domain.NewMissingRequiredFieldError("note")
		}
		e.AddNote(agent, note, s.now())
		return nil
	})
}

// ManualRetry starts a fresh attempt chain for the entry. The chain follows
// the policy that applies today, or a single try when none does.
func (s *FailureQueueService) ManualRetry(ctx context.Context, id, agent string, at *time.Time) (*domain.FailureQueueEntry, *domain.PaymentAttempt, error) {
	entry, err := s.failures.FindByID(ctx, id)
	if err != nil {
		return nil, nil, mapServiceError(err)
	}

	now := s.now()
	scheduled := now
	if at != nil && at.After(now) {
		scheduled = *at
	}

	policy, err := s.policies.Select(ctx, entry.Method, entry.FailureReason)
	if err != nil {
		return nil, nil, application.NewInternalError(err)
	}
	if policy == nil || policy.MaxAttempts == 0 {
		policy = &domain.RetryPolicy{MaxAttempts: 1, BackoffMultiplier: 1, StopOnSuccess: true}
	}
	manual := *policy
	manual.InitialDelay = scheduled.Sub(now)

	attempt, err := domain.NewPaymentAttempt(domain.NewAttemptParams{
		ID:                s.newID(),
		LoanID:            entry.LoanID,
		OriginalPaymentID: entry.OriginalPaymentID,
		BorrowerName:      entry.BorrowerName,
		AmountCents:       entry.AmountCents,
		Method:            entry.Method,
		Account:           entry.Account,
		FailureReason:     entry.FailureReason,
		FailureCode:       entry.FailureCode,
		Policy:            &manual,
		FailedAt:          now,
	})
	if err != nil {
		return nil, nil, application.NewInvalidInputError(err)
	}
	attempt.Metadata[domain.MetaManualRetryOf] = entry.ID

	err = s.tx.WithTransaction(ctx, func(ctx context.Context, attempts application.AttemptRepository, failures application.FailureQueueRepository) error {
		updated, err := failures.Modify(ctx, id, func(e *domain.FailureQueueEntry) error {
			if err := e.StartManualRetry(scheduled, now); err != nil {
				return err
			}
			e.AddNote(agent, "manual retry scheduled", now)
			return nil
		})
		if err != nil {
			return err
		}
		entry = updated
		return attempts.Create(ctx, attempt)
	})
	if err != nil {
		return nil, nil, mapServiceError(err)
	}

	s.logger.Info("manual retry scheduled",
		"entry_id", entry.ID,
		"attempt_id", attempt.ID,
		"agent", agent,
		"scheduled_for", scheduled)
	return entry, attempt, nil
}

func (s *FailureQueueService) Resolve(ctx context.Context, id, agent, note string) (*domain.FailureQueueEntry, error) {
	entry, err := s.modify(ctx, id, func(e *domain.FailureQueueEntry) error {
		return e.Resolve(agent, note, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.stopManualChain(ctx, entry.ID, "failure entry resolved")
	s.logger.Info("failure entry resolved", "entry_id", id, "agent", agent)
	return entry, nil
}

func (s *FailureQueueService) Cancel(ctx context.Context, id, agent, note string) (*domain.FailureQueueEntry, error) {
	entry, err := s.modify(ctx, id, func(e *domain.FailureQueueEntry) error {
		return e.Cancel(agent, note, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.stopManualChain(ctx, entry.ID, "failure entry cancelled")
	s.logger.Info("failure entry cancelled", "entry_id", id, "agent", agent)
	return entry, nil
}

// stopManualChain cancels pending attempts started from the entry.
func (s *FailureQueueService) stopManualChain(ctx context.Context, entryID, reason string) {
	pending, err := s.attempts.List(ctx, domain.AttemptPending, 0, 0)
	if err != nil {
		s.logger.Error("failed to load pending attempts", "entry_id", entryID, "error", err)
		return
	}
	for _, a := range pending {
		if a.Metadata[domain.MetaManualRetryOf] != entryID {
			continue
		}
		if _, err := s.attempts.Modify(ctx, a.ID, func(p *domain.PaymentAttempt) error {
			return p.Cancel(reason, s.now())
		}); err != nil {
			s.logger.Warn("failed to cancel manual retry", "attempt_id", a.ID, "error", err)
		}
	}
}

func (s *FailureQueueService) modify(ctx context.Context, id string, fn func(*domain.FailureQueueEntry) error) (*domain.FailureQueueEntry, error) {
	e, err := s.failures.Modify(ctx, id, fn)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return e, nil
}
