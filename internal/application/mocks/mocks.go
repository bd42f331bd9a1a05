// Package mocks provides test doubles for the application's collaborator ports.
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

type PaymentApplier struct {
	mock.Mock
}

func (m *PaymentApplier) Submit(ctx context.Context, req application.PaymentSubmission) (*application.PaymentReceipt, error) {
	args := m.Called(ctx, req)
	receipt, _ := args.Get(0).(*application.PaymentReceipt)
	return receipt, args.Error(1)
}

type AllocationService struct {
	mock.Mock
}

func (m *AllocationService) ComputeAllocation(ctx context.Context, loanID string, amountCents int64) (domain.Allocation, error) {
	args := m.Called(ctx, loanID, amountCents)
	alloc, _ := args.Get(0).(domain.Allocation)
	return alloc, args.Error(1)
}

type LoanDirectory struct {
	mock.Mock
}

func (m *LoanDirectory) FindLoan(ctx context.Context, ref string) (*domain.LoanSummary, error) {
	args := m.Called(ctx, ref)
	loan, _ := args.Get(0).(*domain.LoanSummary)
	return loan, args.Error(1)
}

func (m *LoanDirectory) SearchCandidates(ctx context.Context, amountCents int64, identity domain.IdentitySignals) ([]domain.LoanSummary, error) {
	args := m.Called(ctx, amountCents, identity)
	loans, _ := args.Get(0).([]domain.LoanSummary)
	return loans, args.Error(1)
}

// RecordingNotifier keeps every event it is sent. Err, when set, is returned
// after recording.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []application.NotificationEvent
	Err    error
}

func (n *RecordingNotifier) Notify(_ context.Context, _ string, event application.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.Err
}

func (n *RecordingNotifier) Events() []application.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]application.NotificationEvent(nil), n.events...)
}

// Has reports whether an event of type t was recorded.
func (n *RecordingNotifier) Has(t application.EventType) bool {
	for _, e := range n.Events() {
		if e.Type == t {
			return true
		}
	}
	return false
}
