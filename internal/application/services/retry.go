package services

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/google/uuid"
)

const (
	systemActor          = "system"
	siblingCancelReason  = "recovered by sibling attempt"
	directEscalationNote = "no retry policy applies"
)

// RetryService drives payment attempts through their lifecycle.
type RetryService struct {
	attempts application.AttemptRepository
	failures application.FailureQueueRepository
	tx       application.TransactionCoordinator
	policies *PolicyService
	applier  application.PaymentApplier
	notifier application.Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewRetryService(
	attempts application.AttemptRepository,
	failures application.FailureQueueRepository,
	tx application.TransactionCoordinator,
	policies *PolicyService,
	applier application.PaymentApplier,
	notifier application.Notifier,
	logger *slog.Logger,
) *RetryService {
	return &RetryService{
		attempts: attempts,
		failures: failures,
		tx:       tx,
		policies: policies,
		applier:  applier,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock replaces the time source.
func (s *RetryService) WithClock(now func() time.Time) *RetryService {
	s.now = now
	return s
}

type RegisterFailureCommand struct {
	LoanID            string
	OriginalPaymentID string
	BorrowerName      string
	AmountCents       int64
	Method            domain.PaymentMethod
	Account           domain.AccountDetails
	FailureReason     domain.FailureReason
	FailureCode       string
	FailedAt          time.Time
}

// Registration is the outcome of registering a failed payment: either a
// scheduled attempt or, when nothing will retry it, a failure queue entry.
type Registration struct {
	Attempt *domain.PaymentAttempt
	Entry   *domain.FailureQueueEntry
}

// ProcessResult describes one pass of an attempt through the state machine.
type ProcessResult struct {
	Attempt   *domain.PaymentAttempt
	Successor *domain.PaymentAttempt
	Entry     *domain.FailureQueueEntry
}

type ScanResult struct {
	Due       int
	Succeeded int
	Retried   int
	Escalated int
	Skipped   int
	Errors    int
}

func (r *ScanResult) record(result *ProcessResult) {
	switch {
	case result.Attempt.Status == domain.AttemptSuccess:
		r.Succeeded++
	case result.Successor != nil:
		r.Retried++
	default:
		r.Escalated++
	}
}

// RegisterFailure records an originating payment failure. Registering the
// same original payment twice returns the attempt already pending for it.
func (s *RetryService) RegisterFailure(ctx context.Context, cmd RegisterFailureCommand) (*Registration, error) {
	failedAt := cmd.FailedAt
	if failedAt.IsZero() {
		failedAt = s.now()
	}

	if cmd.OriginalPaymentID != "" {
		pending, err := s.attempts.FindPendingByOriginal(ctx, cmd.OriginalPaymentID)
		if err != nil {
			return nil, application.NewInternalError(err)
		}
		if len(pending) > 0 {
			return &Registration{Attempt: pending[0]}, nil
		}
	}

	policy, err := s.policies.Select(ctx, cmd.Method, cmd.FailureReason)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	params := domain.NewAttemptParams{
		ID:                s.newID(),
		LoanID:            cmd.LoanID,
		OriginalPaymentID: cmd.OriginalPaymentID,
		BorrowerName:      cmd.BorrowerName,
		AmountCents:       cmd.AmountCents,
		Method:            cmd.Method,
		Account:           cmd.Account,
		FailureReason:     cmd.FailureReason,
		FailureCode:       cmd.FailureCode,
		Policy:            policy,
		FailedAt:          failedAt,
	}

	if policy == nil || policy.MaxAttempts == 0 {
		return s.escalateDirectly(ctx, params)
	}

	attempt, err := domain.NewPaymentAttempt(params)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, application.NewInternalError(err)
	}

	s.logger.Info("retry scheduled for failed payment",
		"attempt_id", attempt.ID,
		"loan_id", attempt.LoanID,
		"policy_id", policy.ID,
		"scheduled_for", attempt.ScheduledFor)
	return &Registration{Attempt: attempt}, nil
}

func (s *RetryService) escalateDirectly(ctx context.Context, params domain.NewAttemptParams) (*Registration, error) {
	entry, err := domain.NewDirectEscalation(s.newID(), params)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	entry.AddNote(systemActor, directEscalationNote, params.FailedAt)
	if err := s.failures.Create(ctx, entry); err != nil {
		return nil, application.NewInternalError(err)
	}

	s.logger.Warn("no retry policy applies, payment escalated",
		"entry_id", entry.ID,
		"loan_id", entry.LoanID,
		"method", entry.Method,
		"reason", entry.FailureReason)
	s.notifyEntry(entry)
	return &Registration{Entry: entry}, nil
}

// ScanDue processes every pending attempt that is due, each at most once.
// Attempts claimed by someone else in the meantime are skipped.
func (s *RetryService) ScanDue(ctx context.Context, limit int) (ScanResult, error) {
	var res ScanResult

	due, err := s.attempts.FindDue(ctx, s.now(), limit)
	if err != nil {
		return res, err
	}
	res.Due = len(due)

	seen := make(map[string]struct{}, len(due))
	for _, a := range due {
		if ctx.Err() != nil {
			break
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}

		result, err := s.claimAndProcess(ctx, a.ID)
		switch {
		case errors.Is(err, domain.ErrAlreadyClaimed):
			res.Skipped++
		case err != nil:
			res.Errors++
			s.logger.Error("attempt processing failed", "attempt_id", a.ID, "error", err)
		default:
			res.record(result)
		}
	}
	return res, nil
}

// RecoverStale resubmits attempts left PROCESSING for at least staleAfter,
// e.g. by a crash between submission and recording the outcome. The retry
// reuses the attempt's idempotency key, so a payment that did go through is
// not collected twice.
func (s *RetryService) RecoverStale(ctx context.Context, staleAfter time.Duration, limit int) (ScanResult, error) {
	var res ScanResult
	if staleAfter <= 0 {
		return res, nil
	}

	cutoff := s.now().Add(-staleAfter)
	stale, err := s.attempts.FindStale(ctx, cutoff, limit)
	if err != nil {
		return res, err
	}
	res.Due = len(stale)

	for _, a := range stale {
		if ctx.Err() != nil {
			break
		}
		claimed, err := s.attempts.ReclaimStale(ctx, a.ID, cutoff, s.now())
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			res.Skipped++
			continue
		}
		if err != nil {
			res.Errors++
			s.logger.Error("failed to reclaim stale attempt", "attempt_id", a.ID, "error", err)
			continue
		}

		s.logger.Warn("resubmitting stale attempt",
			"attempt_id", claimed.ID,
			"attempt_number", claimed.AttemptNumber,
			"claimed_at", a.UpdatedAt)
		result, err := s.submit(ctx, claimed)
		if err != nil {
			res.Errors++
			s.logger.Error("stale attempt processing failed", "attempt_id", a.ID, "error", err)
			continue
		}
		res.record(result)
	}
	return res, nil
}

// ProcessNow submits a pending attempt immediately, ignoring its due time.
func (s *RetryService) ProcessNow(ctx context.Context, id string) (*ProcessResult, error) {
	result, err := s.claimAndProcess(ctx, id)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return result, nil
}

func (s *RetryService) Cancel(ctx context.Context, id, reason string) (*domain.PaymentAttempt, error) {
	a, err := s.attempts.Modify(ctx, id, func(a *domain.PaymentAttempt) error {
		return a.Cancel(reason, s.now())
	})
	if err != nil {
		return nil, mapServiceError(err)
	}
	s.logger.Info("attempt cancelled", "attempt_id", id, "reason", reason)
	return a, nil
}

func (s *RetryService) Get(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	a, err := s.attempts.FindByID(ctx, id)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return a, nil
}

func (s *RetryService) List(ctx context.Context, status domain.AttemptStatus, limit, offset int) ([]*domain.PaymentAttempt, error) {
	attempts, err := s.attempts.List(ctx, status, pageLimit(limit), offset)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return attempts, nil
}

func (s *RetryService) claimAndProcess(ctx context.Context, id string) (*ProcessResult, error) {
	a, err := s.attempts.Claim(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, a)
}

// submit sends a claimed attempt and records the outcome. The attempt ID is the
// idempotency key.
func (s *RetryService) submit(ctx context.Context, a *domain.PaymentAttempt) (*ProcessResult, error) {
	// Once claimed the attempt must reach a terminal state even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	claimedAt := a.UpdatedAt

	receipt, err := s.applier.Submit(ctx, application.PaymentSubmission{
		LoanID:         a.LoanID,
		AmountCents:    a.AmountCents,
		Method:         a.Method,
		Account:        a.Account,
		IdempotencyKey: a.ID,
	})
	if err != nil {
		return s.handleFailure(ctx, a, claimedAt, err)
	}
	return s.handleSuccess(ctx, a, claimedAt, receipt)
}

// storeOutcome writes a's new state only while the claim taken at claimedAt
// is still current. A stale sweep may have taken the attempt over meanwhile.
func storeOutcome(ctx context.Context, attempts application.AttemptRepository, a *domain.PaymentAttempt, claimedAt time.Time) error {
	_, err := attempts.Modify(ctx, a.ID, func(current *domain.PaymentAttempt) error {
		if current.Status != domain.AttemptProcessing || !current.UpdatedAt.Equal(claimedAt) {
			return domain.NewAlreadyClaimedError(a.ID)
		}
		outcome := *a
		outcome.Metadata = maps.Clone(a.Metadata)
		*current = outcome
		return nil
	})
	return err
}

func (s *RetryService) outcomeError(a *domain.PaymentAttempt, msg string, err error) error {
	if errors.Is(err, domain.ErrAlreadyClaimed) {
		s.logger.Warn("attempt claim lost before outcome was recorded", "attempt_id", a.ID)
		return err
	}
	s.logger.Error(msg, "attempt_id", a.ID, "error", err)
	return application.NewInternalError(err)
}

func (s *RetryService) handleSuccess(ctx context.Context, a *domain.PaymentAttempt, claimedAt time.Time, receipt *application.PaymentReceipt) (*ProcessResult, error) {
	now := s.now()
	policy := s.policyFor(ctx, a)
	if err := a.Succeed(receipt.TransactionID, now); err != nil {
		return nil, err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context, attempts application.AttemptRepository, failures application.FailureQueueRepository) error {
		if err := storeOutcome(ctx, attempts, a, claimedAt); err != nil {
			return err
		}
		entryID := a.Metadata[domain.MetaManualRetryOf]
		if entryID == "" {
			return nil
		}
		_, err := failures.Modify(ctx, entryID, func(e *domain.FailureQueueEntry) error {
			return e.Resolve(systemActor, "recovered by manual retry, transaction "+receipt.TransactionID, now)
		})
		return s.tolerateSettledEntry(entryID, err)
	})
	if err != nil {
		return nil, s.outcomeError(a, "payment collected but outcome not recorded", err)
	}

	if policy == nil || policy.StopOnSuccess {
		s.cancelSiblings(ctx, a)
	}

	s.logger.Info("payment recovered",
		"attempt_id", a.ID,
		"attempt_number", a.AttemptNumber,
		"transaction_id", receipt.TransactionID)
	notify(s.logger, s.notifier, a.LoanID, application.NotificationEvent{
		Type:        application.EventPaymentRecovered,
		SubjectID:   a.ID,
		LoanID:      a.LoanID,
		AmountCents: a.AmountCents,
		OccurredAt:  now,
	})
	return &ProcessResult{Attempt: a}, nil
}

func (s *RetryService) handleFailure(ctx context.Context, a *domain.PaymentAttempt, claimedAt time.Time, cause error) (*ProcessResult, error) {
	reason, code := application.FailureFromError(cause)
	now := s.now()
	policy := s.policyFor(ctx, a)

	s.logger.Warn("payment attempt failed",
		"attempt_id", a.ID,
		"attempt_number", a.AttemptNumber,
		"max_retries", a.MaxRetries,
		"reason", reason,
		"category", application.CategorizeError(cause),
		"error", cause)

	if !a.Exhausted() {
		interval := domain.DefaultRetryInterval
		if policy != nil {
			interval = policy.Interval(a.AttemptNumber)
		}
		if err := a.Fail(reason, code, now); err != nil {
			return nil, err
		}
		next, err := a.Successor(s.newID(), now.Add(interval), now)
		if err != nil {
			return nil, err
		}
		err = s.tx.WithTransaction(ctx, func(ctx context.Context, attempts application.AttemptRepository, _ application.FailureQueueRepository) error {
			if err := storeOutcome(ctx, attempts, a, claimedAt); err != nil {
				return err
			}
			return attempts.Create(ctx, next)
		})
		if err != nil {
			return nil, s.outcomeError(a, "failed to schedule next attempt", err)
		}

		notify(s.logger, s.notifier, a.LoanID, application.NotificationEvent{
			Type:        application.EventRetryScheduled,
			SubjectID:   next.ID,
			LoanID:      a.LoanID,
			AmountCents: a.AmountCents,
			OccurredAt:  now,
			Details:     map[string]string{"next_retry_at": next.DueAt().Format(time.RFC3339)},
		})
		return &ProcessResult{Attempt: a, Successor: next}, nil
	}

	if err := a.Escalate(reason, code, now); err != nil {
		return nil, err
	}

	result := &ProcessResult{Attempt: a}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context, attempts application.AttemptRepository, failures application.FailureQueueRepository) error {
		if err := storeOutcome(ctx, attempts, a, claimedAt); err != nil {
			return err
		}
		if entryID := a.Metadata[domain.MetaManualRetryOf]; entryID != "" {
			entry, err := failures.Modify(ctx, entryID, func(e *domain.FailureQueueEntry) error {
				return e.Exhaust(reason, code, a.AttemptNumber, now)
			})
			result.Entry = entry
			return s.tolerateSettledEntry(entryID, err)
		}
		if policy == nil || policy.EscalateAfterMaxRetries {
			entry := domain.NewEscalatedEntry(s.newID(), a, now)
			if err := failures.Create(ctx, entry); err != nil {
				return err
			}
			result.Entry = entry
		}
		return nil
	})
	if err != nil {
		return nil, s.outcomeError(a, "failed to escalate attempt", err)
	}

	s.logger.Warn("retries exhausted, attempt escalated",
		"attempt_id", a.ID,
		"loan_id", a.LoanID,
		"queued", result.Entry != nil)
	if result.Entry != nil {
		s.notifyEntry(result.Entry)
	}
	return result, nil
}

// tolerateSettledEntry ignores a failure entry that an agent already resolved
// or cancelled, so the attempt's own outcome is still recorded.
func (s *RetryService) tolerateSettledEntry(entryID string, err error) error {
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrEntryNotFound) {
		s.logger.Warn("failure entry not updated", "entry_id", entryID, "error", err)
		return nil
	}
	return err
}

// policyFor loads the attempt's policy. A missing policy flags the attempt so
// operators can see it ran on fallback settings.
func (s *RetryService) policyFor(ctx context.Context, a *domain.PaymentAttempt) *domain.RetryPolicy {
	if a.PolicyID == "" {
		return nil
	}
	policy, err := s.policies.Lookup(ctx, a.PolicyID)
	if err != nil {
		s.logger.Error("retry policy lookup failed", "attempt_id", a.ID, "policy_id", a.PolicyID, "error", err)
	}
	if policy == nil {
		a.FlagPolicyMissing()
		s.logger.Warn("retry policy missing, using fallback interval",
			"attempt_id", a.ID,
			"policy_id", a.PolicyID,
			"fallback", domain.DefaultRetryInterval)
	}
	return policy
}

func (s *RetryService) cancelSiblings(ctx context.Context, a *domain.PaymentAttempt) {
	siblings, err := s.attempts.FindPendingByOriginal(ctx, a.OriginalPaymentID)
	if err != nil {
		s.logger.Error("failed to load sibling attempts", "original_payment_id", a.OriginalPaymentID, "error", err)
		return
	}
	for _, sib := range siblings {
		if sib.ID == a.ID {
			continue
		}
		_, err := s.attempts.Modify(ctx, sib.ID, func(p *domain.PaymentAttempt) error {
			return p.Cancel(siblingCancelReason, s.now())
		})
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Error("failed to cancel sibling attempt", "attempt_id", sib.ID, "error", err)
		}
	}
}

func (s *RetryService) notifyEntry(e *domain.FailureQueueEntry) {
	notify(s.logger, s.notifier, e.LoanID, application.NotificationEvent{
		Type:        application.EventPaymentEscalated,
		SubjectID:   e.ID,
		LoanID:      e.LoanID,
		AmountCents: e.AmountCents,
		OccurredAt:  e.UpdatedAt,
		Details:     map[string]string{"reason": string(e.FailureReason)},
	})
}

// mapServiceError wraps domain and repository errors for callers at the edge.
func mapServiceError(err error) error {
	if _, ok := application.IsServiceError(err); ok {
		return err
	}
	switch application.CategorizeError(err) {
	case application.CategoryClientError:
		if errors.Is(err, domain.ErrMissingRequiredField) {
			return application.NewInvalidInputError(err)
		}
		return application.NewNotFoundError(err)
	case application.CategoryBusinessRule:
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrAlreadyClaimed) {
			return application.NewInvalidStateError(err)
		}
		return application.NewInvalidInputError(err)
	}
	return application.NewInternalError(err)
}
