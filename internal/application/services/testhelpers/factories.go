package testhelpers

import (
	"fmt"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Fixed base time for fixtures. Postgres keeps microseconds, so fixtures stay
// on whole seconds to compare cleanly after a round trip.
var BaseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// DefaultPolicy returns a valid ACH insufficient-funds policy for testing
func DefaultPolicy() *domain.RetryPolicy {
	return &domain.RetryPolicy{
		ID:                      "policy-" + uuid.NewString(),
		Name:                    "NSF on ACH",
		Enabled:                 true,
		Intervals:               []time.Duration{72 * time.Hour, 168 * time.Hour},
		MaxAttempts:             3,
		BackoffMultiplier:       1.5,
		StopOnSuccess:           true,
		EscalateAfterMaxRetries: true,
		PaymentMethods:          []domain.PaymentMethod{domain.MethodACH},
		FailureReasons:          []domain.FailureReason{domain.ReasonInsufficientFunds},
		Priority:                10,
		UpdatedAt:               BaseTime,
	}
}

// NewPendingAttempt creates attempt 1 for a fresh failed payment, due at failedAt
func NewPendingAttempt(t *testing.T, policy *domain.RetryPolicy, failedAt time.Time) *domain.PaymentAttempt {
	t.Helper()
	a, err := domain.NewPaymentAttempt(domain.NewAttemptParams{
		ID:                "att-" + uuid.NewString(),
		LoanID:            "LN-100200",
		OriginalPaymentID: "pay-" + uuid.NewString(),
		BorrowerName:      "Ada Obi",
		AmountCents:       150000,
		Method:            domain.MethodACH,
		Account:           domain.AccountDetails{AccountNumber: "000123456", RoutingNumber: "021000021"},
		FailureReason:     domain.ReasonInsufficientFunds,
		FailureCode:       "R01",
		Policy:            policy,
		FailedAt:          failedAt,
	})
	require.NoError(t, err)
	return a
}

// NewEscalatedEntry returns a failure queue entry for an exhausted attempt
func NewEscalatedEntry(t *testing.T, attempt *domain.PaymentAttempt) *domain.FailureQueueEntry {
	t.Helper()
	return domain.NewEscalatedEntry("fq-"+uuid.NewString(), attempt, attempt.CreatedAt)
}

// NewSuspensePayment returns an unmatched payment with one scored candidate
func NewSuspensePayment(t *testing.T, amount int64, receivedAt time.Time) *domain.SuspensePayment {
	t.Helper()
	p, err := domain.NewSuspensePayment("sus-"+uuid.NewString(), amount, receivedAt)
	require.NoError(t, err)
	p.CustomerName = "Ada Obi"
	p.ReasonCode = "UNIDENTIFIED"
	p.Matches = []domain.LoanMatch{{
		LoanID:               "LN-100200",
		BorrowerName:         "Ada Obi",
		ExpectedPaymentCents: amount,
		NextPaymentDue:       receivedAt.Add(72 * time.Hour),
		Confidence:           85,
		Tier:                 domain.TierStrong,
		Reasons:              []string{domain.ReasonExactAmount, domain.ReasonNameExact},
	}}
	return p
}

// NewValidatedBatch returns a VALIDATED batch of n card payments
func NewValidatedBatch(t *testing.T, n int) *domain.PaymentBatch {
	t.Helper()
	id := "batch-" + uuid.NewString()
	records := make([]*domain.BatchRecord, 0, n)
	for i := range n {
		amount := fmt.Sprintf("%d.00", 100+i)
		records = append(records, &domain.BatchRecord{
			ID:          fmt.Sprintf("%s-%d", id, i+1),
			RowNumber:   i + 2,
			LoanRef:     fmt.Sprintf("LN-%05d", 10000+i),
			AmountCents: int64(100+i) * 100,
			PaymentDate: BaseTime,
			Method:      domain.MethodCard,
			Fields: map[string]string{
				"loan_ref": fmt.Sprintf("LN-%05d", 10000+i),
				"amount":   amount,
			},
			Status: domain.RecordPending,
		})
	}
	batch := domain.NewPaymentBatch(id, "payments.csv", records, BaseTime)
	for _, r := range batch.Records {
		require.NoError(t, r.StartValidation())
		require.NoError(t, r.FinishValidation(nil))
	}
	require.NoError(t, batch.MarkValidated(BaseTime))
	return batch
}
