package application

import (
	"context"
	"fmt"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// LoanDirectory is the port for looking up loans. FindLoan returns an error
// wrapping domain.ErrLoanNotFound for unknown references.
type LoanDirectory interface {
	FindLoan(ctx context.Context, loanRef string) (*domain.LoanSummary, error)
	SearchCandidates(ctx context.Context, amountCents int64, identity domain.IdentitySignals) ([]domain.LoanSummary, error)
}

// PaymentApplier is the port for the payment application service. A decline
// is returned as a *PaymentFailure error.
type PaymentApplier interface {
	Submit(ctx context.Context, req PaymentSubmission) (*PaymentReceipt, error)
}

// AllocationService is the port for the loan terms engine.
type AllocationService interface {
	ComputeAllocation(ctx context.Context, loanID string, amountCents int64) (domain.Allocation, error)
}

// Notifier delivers borrower events. Callers never wait on it.
type Notifier interface {
	Notify(ctx context.Context, borrowerRef string, event NotificationEvent) error
}

type PaymentSubmission struct {
	LoanID         string                `json:"loan_id"`
	AmountCents    int64                 `json:"amount_cents"`
	Method         domain.PaymentMethod  `json:"payment_method"`
	Account        domain.AccountDetails `json:"account"`
	Allocation     *domain.Allocation    `json:"allocation,omitempty"`
	IdempotencyKey string                `json:"-"`
}

type PaymentReceipt struct {
	TransactionID         string    `json:"transaction_id"`
	AppliedCents          int64     `json:"applied_cents"`
	PrincipalCents        int64     `json:"principal_cents"`
	InterestCents         int64     `json:"interest_cents"`
	FeesCents             int64     `json:"fees_cents"`
	ResultingBalanceCents int64     `json:"resulting_balance_cents"`
	ProcessedAt           time.Time `json:"processed_at"`
}

// PaymentFailure is a decline reported by the payment application service.
type PaymentFailure struct {
	Reason  domain.FailureReason
	Code    string
	Message string
}

func (e *PaymentFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment declined [%s/%s]", e.Reason, e.Code)
	}
	return fmt.Sprintf("payment declined [%s/%s]: %s", e.Reason, e.Code, e.Message)
}

type EventType string

const (
	EventRetryScheduled   EventType = "retry_scheduled"
	EventPaymentRecovered EventType = "payment_recovered"
	EventPaymentEscalated EventType = "payment_escalated"
	EventSuspenseApplied  EventType = "suspense_applied"
	EventBatchCompleted   EventType = "batch_completed"
)

type NotificationEvent struct {
	Type        EventType         `json:"type"`
	SubjectID   string            `json:"subject_id"`
	LoanID      string            `json:"loan_id,omitempty"`
	AmountCents int64             `json:"amount_cents,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Details     map[string]string `json:"details,omitempty"`
}

// PolicyRepository stores the retry policy registry.
type PolicyRepository interface {
	List(ctx context.Context) ([]*domain.RetryPolicy, error)
	FindByID(ctx context.Context, id string) (*domain.RetryPolicy, error)
	Save(ctx context.Context, policy *domain.RetryPolicy) error
	Delete(ctx context.Context, id string) error
}

// AttemptRepository stores payment attempts. Claim is the only way an attempt
// enters PROCESSING: it succeeds for exactly one caller per pending attempt.
// List with a limit of zero returns every match.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.PaymentAttempt) error
	FindByID(ctx context.Context, id string) (*domain.PaymentAttempt, error)
	Update(ctx context.Context, attempt *domain.PaymentAttempt) error
	List(ctx context.Context, status domain.AttemptStatus, limit, offset int) ([]*domain.PaymentAttempt, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentAttempt, error)
	FindPendingByOriginal(ctx context.Context, originalPaymentID string) ([]*domain.PaymentAttempt, error)
	Claim(ctx context.Context, id string, now time.Time) (*domain.PaymentAttempt, error)
	Modify(ctx context.Context, id string, fn func(*domain.PaymentAttempt) error) (*domain.PaymentAttempt, error)
	// FindStale returns PROCESSING attempts claimed at or before claimedBefore.
	FindStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*domain.PaymentAttempt, error)
	// ReclaimStale takes over a stale claim for one caller, like Claim.
	ReclaimStale(ctx context.Context, id string, claimedBefore, now time.Time) (*domain.PaymentAttempt, error)
}

type FailureFilter struct {
	Status    domain.FailureStatus
	Escalated *bool
	Limit     int
	Offset    int
}

type FailureQueueRepository interface {
	Create(ctx context.Context, entry *domain.FailureQueueEntry) error
	FindByID(ctx context.Context, id string) (*domain.FailureQueueEntry, error)
	List(ctx context.Context, filter FailureFilter) ([]*domain.FailureQueueEntry, error)
	Modify(ctx context.Context, id string, fn func(*domain.FailureQueueEntry) error) (*domain.FailureQueueEntry, error)
}

// TransactionCoordinator runs fn against attempt and failure queue
// repositories bound to one transaction. Nothing fn writes is kept unless it
// returns nil.
type TransactionCoordinator interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, attempts AttemptRepository, failures FailureQueueRepository) error) error
}

// SuspenseRepository stores suspense payments. List with no statuses returns all.
type SuspenseRepository interface {
	Create(ctx context.Context, payment *domain.SuspensePayment) error
	FindByID(ctx context.Context, id string) (*domain.SuspensePayment, error)
	List(ctx context.Context, statuses ...domain.SuspenseStatus) ([]*domain.SuspensePayment, error)
	Modify(ctx context.Context, id string, fn func(*domain.SuspensePayment) error) (*domain.SuspensePayment, error)
}

// BatchRepository stores batches with their records. UpdateRecord persists a
// single record's progress without touching the rest of the batch.
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.PaymentBatch) error
	FindByID(ctx context.Context, id string) (*domain.PaymentBatch, error)
	List(ctx context.Context, limit, offset int) ([]*domain.PaymentBatch, error)
	Update(ctx context.Context, batch *domain.PaymentBatch) error
	UpdateRecord(ctx context.Context, batchID string, record *domain.BatchRecord) error
}
