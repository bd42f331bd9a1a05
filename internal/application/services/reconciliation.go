package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/google/uuid"
)

const defaultSuspenseReason = "UNIDENTIFIED"

// ReconciliationService matches suspense payments to loans and applies them.
type ReconciliationService struct {
	suspense  application.SuspenseRepository
	directory application.LoanDirectory
	allocator application.AllocationService
	applier   application.PaymentApplier
	notifier  application.Notifier
	weights   domain.ScoringWeights
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewReconciliationService(
	suspense application.SuspenseRepository,
	directory application.LoanDirectory,
	allocator application.AllocationService,
	applier application.PaymentApplier,
	notifier application.Notifier,
	weights domain.ScoringWeights,
	logger *slog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		suspense:  suspense,
		directory: directory,
		allocator: allocator,
		applier:   applier,
		notifier:  notifier,
		weights:   weights,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *ReconciliationService) WithClock(now func() time.Time) *ReconciliationService {
	s.now = now
	return s
}

type CreateSuspenseCommand struct {
	AmountCents     int64
	ReceivedAt      time.Time
	Method          domain.PaymentMethod
	ReferenceNumber string
	AccountNumber   string
	RoutingNumber   string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Source          string
	ReasonCode      string
}

type ApplyMatchCommand struct {
	LoanID     string
	AppliedBy  string
	Allocation *domain.Allocation
}

// Create records an unidentified payment and runs a first matching pass. A
// directory outage leaves the candidate list empty.
func (s *ReconciliationService) Create(ctx context.Context, cmd CreateSuspenseCommand) (*domain.SuspensePayment, error) {
	receivedAt := cmd.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	p, err := domain.NewSuspensePayment(s.newID(), cmd.AmountCents, receivedAt)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	p.Method = cmd.Method
	p.ReferenceNumber = cmd.ReferenceNumber
	p.AccountNumber = cmd.AccountNumber
	p.RoutingNumber = cmd.RoutingNumber
	p.CustomerName = cmd.CustomerName
	p.CustomerEmail = cmd.CustomerEmail
	p.CustomerPhone = cmd.CustomerPhone
	p.Source = cmd.Source
	p.ReasonCode = cmd.ReasonCode
	if p.ReasonCode == "" {
		p.ReasonCode = defaultSuspenseReason
	}

	matches, err := s.findMatches(ctx, p)
	if err != nil {
		s.logger.Warn("initial matching failed", "suspense_id", p.ID, "error", err)
	}
	p.Matches = matches

	if err := s.suspense.Create(ctx, p); err != nil {
		return nil, application.NewInternalError(err)
	}
	s.logger.Info("suspense payment recorded",
		"suspense_id", p.ID,
		"amount_cents", p.AmountCents,
		"candidates", len(p.Matches),
		"best_confidence", p.BestConfidence())
	return p, nil
}

func (s *ReconciliationService) Get(ctx context.Context, id string) (*domain.SuspensePayment, error) {
	p, err := s.suspense.FindByID(ctx, id)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return p, nil
}

func (s *ReconciliationService) List(ctx context.Context, q SuspenseQuery) ([]*domain.SuspensePayment, error) {
	if err := q.Validate(); err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	var statuses []domain.SuspenseStatus
	if q.Status != "" {
		statuses = append(statuses, q.Status)
	}
	payments, err := s.suspense.List(ctx, statuses...)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return q.Apply(payments, s.now()), nil
}

// RefreshMatches regenerates the candidate list. Status is left untouched.
func (s *ReconciliationService) RefreshMatches(ctx context.Context, id string) (*domain.SuspensePayment, error) {
	p, err := s.suspense.FindByID(ctx, id)
	if err != nil {
		return nil, mapServiceError(err)
	}
	if p.IsClosed() {
		return nil, application.NewInvalidStateError(
			domain.NewInvalidTransitionError("suspense payment", string(p.Status), "REMATCH"))
	}

	matches, err := s.findMatches(ctx, p)
	if err != nil {
		return nil, application.NewUpstreamError(err)
	}
	return s.modify(ctx, id, func(p *domain.SuspensePayment) error {
		return p.SetMatches(matches, s.now())
	})
}

// RefreshOpen rematches payments still being researched, up to limit.
func (s *ReconciliationService) RefreshOpen(ctx context.Context, limit int) (int, error) {
	open, err := s.suspense.List(ctx, domain.SuspenseUnmatched, domain.SuspenseResearching)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, p := range open {
		if refreshed >= limit || ctx.Err() != nil {
			break
		}
		if _, err := s.RefreshMatches(ctx, p.ID); err != nil {
			s.logger.Error("failed to refresh candidates", "suspense_id", p.ID, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// ApplyMatch posts the payment to the chosen loan and marks it MATCHED. The
// payment is claimed before any money moves, so a concurrent reject or a
// second apply fails instead of racing the posting. The submission carries an
// idempotency key derived from the suspense payment, so retrying an
// interrupted apply cannot post the money twice.
func (s *ReconciliationService) ApplyMatch(ctx context.Context, id string, cmd ApplyMatchCommand) (*domain.SuspensePayment, error) {
	if cmd.LoanID == "" {
		return nil, application.NewInvalidInputError(domain.NewMissingRequiredFieldError("loan id"))
	}
	p, err := s.suspense.FindByID(ctx, id)
	if err != nil {
		return nil, mapServiceError(err)
	}
	if p.IsClosed() && p.Status != domain.SuspenseApplying {
		return nil, application.NewInvalidStateError(
			domain.NewInvalidTransitionError("suspense payment", string(p.Status), string(domain.SuspenseMatched)))
	}

	if s.directory == nil {
		return nil, application.NewUpstreamError(errors.New("loan directory is not configured"))
	}
	loan, err := s.directory.FindLoan(ctx, cmd.LoanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return nil, application.NewNotFoundError(err)
		}
		return nil, application.NewUpstreamError(err)
	}

	alloc, err := s.allocate(ctx, p, loan, cmd.Allocation)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}

	p, err = s.modify(ctx, id, func(p *domain.SuspensePayment) error {
		return p.ClaimForApply(loan.LoanID, cmd.AppliedBy, alloc, s.now())
	})
	if err != nil {
		return nil, err
	}

	// The claim must be settled even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	receipt, err := s.applier.Submit(ctx, application.PaymentSubmission{
		LoanID:      loan.LoanID,
		AmountCents: p.AmountCents,
		Method:      p.Method,
		Account: domain.AccountDetails{
			AccountNumber: p.AccountNumber,
			RoutingNumber: p.RoutingNumber,
			Reference:     p.ReferenceNumber,
		},
		Allocation:     &alloc,
		IdempotencyKey: "suspense-" + p.ID,
	})
	if err != nil {
		s.logger.Error("balance update failed", "suspense_id", p.ID, "loan_id", loan.LoanID, "error", err)
		if _, relErr := s.suspense.Modify(ctx, id, func(p *domain.SuspensePayment) error {
			return p.ReleaseApply(cmd.AppliedBy, err.Error(), s.now())
		}); relErr != nil {
			s.logger.Error("failed to release apply claim", "suspense_id", id, "error", relErr)
		}
		return nil, application.NewUpstreamError(err)
	}

	now := s.now()
	applied, err := s.modify(ctx, id, func(p *domain.SuspensePayment) error {
		if err := p.Apply(loan.LoanID, cmd.AppliedBy, alloc, now); err != nil {
			return err
		}
		p.AddNote(cmd.AppliedBy, fmt.Sprintf("Applied to loan %s, transaction %s", loan.LoanID, receipt.TransactionID), now)
		return nil
	})
	if err != nil {
		s.logger.Error("payment posted but suspense record not updated",
			"suspense_id", id,
			"loan_id", loan.LoanID,
			"transaction_id", receipt.TransactionID,
			"error", err)
		return nil, err
	}

	s.logger.Info("suspense payment applied",
		"suspense_id", id,
		"loan_id", loan.LoanID,
		"transaction_id", receipt.TransactionID,
		"applied_by", cmd.AppliedBy)
	notify(s.logger, s.notifier, loan.LoanID, application.NotificationEvent{
		Type:        application.EventSuspenseApplied,
		SubjectID:   id,
		LoanID:      loan.LoanID,
		AmountCents: applied.AmountCents,
		OccurredAt:  now,
	})
	return applied, nil
}

func (s *ReconciliationService) Reject(ctx context.Context, id, by, reason string) (*domain.SuspensePayment, error) {
	return s.modify(ctx, id, func(p *domain.SuspensePayment) error {
		return p.Reject(by, reason, s.now())
	})
}

func (s *ReconciliationService) MarkRefunded(ctx context.Context, id, by string) (*domain.SuspensePayment, error) {
	return s.modify(ctx, id, func(p *domain.SuspensePayment) error {
		return p.MarkRefunded(by, s.now())
	})
}

func (s *ReconciliationService) AddNote(ctx context.Context, id, author, text string) (*domain.SuspensePayment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, application.NewInvalidInputError(domain.NewMissingRequiredFieldError("note"))
	}
	return s.modify(ctx, id, func(p *domain.SuspensePayment) error {
		p.AddNote(author, text, s.now())
		return nil
	})
}

func (s *ReconciliationService) Assign(ctx context.Context, id, handler string) (*domain.SuspensePayment, error) {
	return s.modify(ctx, id, func(p *domain.SuspensePayment) error {
		return p.Assign(handler, s.now())
	})
}

func (s *ReconciliationService) SetStatus(ctx context.Context, id string, status domain.SuspenseStatus) (*domain.SuspensePayment, error) {
	return s.modify(ctx, id, func(p *domain.SuspensePayment) error {
		return p.SetResearchStatus(status, s.now())
	})
}

func (s *ReconciliationService) findMatches(ctx context.Context, p *domain.SuspensePayment) ([]domain.LoanMatch, error) {
	if s.directory == nil {
		return nil, nil
	}
	loans, err := s.directory.SearchCandidates(ctx, p.AmountCents, p.Identity())
	if err != nil {
		return nil, err
	}
	return s.weights.Rank(p.AmountCents, p.Identity(), loans), nil
}

// allocate uses the operator's split when given, then the terms engine, and
// falls back to principal, interest, fees with the remainder to escrow.
func (s *ReconciliationService) allocate(ctx context.Context, p *domain.SuspensePayment, loan *domain.LoanSummary, explicit *domain.Allocation) (domain.Allocation, error) {
	if explicit != nil {
		if err := explicit.Validate(p.AmountCents); err != nil {
			return domain.Allocation{}, err
		}
		return *explicit, nil
	}

	if s.allocator != nil {
		alloc, err := s.allocator.ComputeAllocation(ctx, loan.LoanID, p.AmountCents)
		if err == nil {
			if err = alloc.Validate(p.AmountCents); err == nil {
				return alloc, nil
			}
		}
		s.logger.Warn("allocation service unusable, applying waterfall",
			"suspense_id", p.ID,
			"loan_id", loan.LoanID,
			"error", err)
	}
	return domain.WaterfallAllocation(p.AmountCents, *loan), nil
}

func (s *ReconciliationService) modify(ctx context.Context, id string, fn func(*domain.SuspensePayment) error) (*domain.SuspensePayment, error) {
	p, err := s.suspense.Modify(ctx, id, fn)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return p, nil
}
