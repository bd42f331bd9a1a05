package servicing_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/config"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/servicing"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Submit(ctx context.Context, req application.PaymentSubmission) (*application.PaymentReceipt, error) {
	args := m.Called(ctx, req)
	receipt, _ := args.Get(0).(*application.PaymentReceipt)
	return receipt, args.Error(1)
}

func (m *mockClient) ComputeAllocation(ctx context.Context, loanID string, amountCents int64) (domain.Allocation, error) {
	args := m.Called(ctx, loanID, amountCents)
	alloc, _ := args.Get(0).(domain.Allocation)
	return alloc, args.Error(1)
}

var submission = application.PaymentSubmission{
	LoanID:         "LN-100200",
	AmountCents:    150000,
	Method:         domain.MethodACH,
	IdempotencyKey: "retry-att-1",
}

func newRetryClient(inner servicing.Client) *servicing.RetryClient {
	return servicing.NewRetryClient(inner, config.RetryConfig{
		BaseDelay:  time.Millisecond,
		MaxRetries: 3,
	})
}

func TestRetryClient_Submit_Success(t *testing.T) {
	inner := &mockClient{}
	inner.On("Submit", mock.Anything, submission).Return(&application.PaymentReceipt{TransactionID: "txn-1"}, nil).Once()

	receipt, err := newRetryClient(inner).Submit(context.Background(), submission)

	require.NoError(t, err)
	assert.Equal(t, "txn-1", receipt.TransactionID)
	inner.AssertExpectations(t)
}

func TestRetryClient_Submit_RetriesOn5xx(t *testing.T) {
	inner := &mockClient{}
	inner.On("Submit", mock.Anything, submission).
		Return(nil, &application.UpstreamError{Code: "internal_error", StatusCode: http.StatusInternalServerError}).
		Twice()
	inner.On("Submit", mock.Anything, submission).Return(&application.PaymentReceipt{TransactionID: "txn-1"}, nil).Once()

	receipt, err := newRetryClient(inner).Submit(context.Background(), submission)

	require.NoError(t, err)
	assert.Equal(t, "txn-1", receipt.TransactionID)
	inner.AssertNumberOfCalls(t, "Submit", 3)
}

func TestRetryClient_Submit_DeclineIsNotRetried(t *testing.T) {
	inner := &mockClient{}
	decline := &application.PaymentFailure{Reason: domain.ReasonInsufficientFunds, Code: "R01"}
	inner.On("Submit", mock.Anything, submission).Return(nil, decline).Once()

	_, err := newRetryClient(inner).Submit(context.Background(), submission)

	assert.ErrorIs(t, err, decline)
	inner.AssertNumberOfCalls(t, "Submit", 1)
}

func TestRetryClient_Submit_ClientErrorIsNotRetried(t *testing.T) {
	inner := &mockClient{}
	inner.On("Submit", mock.Anything, submission).
		Return(nil, &application.UpstreamError{Code: "bad_request", StatusCode: http.StatusBadRequest}).
		Once()

	_, err := newRetryClient(inner).Submit(context.Background(), submission)

	require.Error(t, err)
	inner.AssertNumberOfCalls(t, "Submit", 1)
}

func TestRetryClient_Submit_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &mockClient{}
	netErr := errors.New("connection refused")
	inner.On("Submit", mock.Anything, submission).Return(nil, netErr)

	_, err := newRetryClient(inner).Submit(context.Background(), submission)

	require.Error(t, err)
	assert.ErrorIs(t, err, netErr)
	assert.Contains(t, err.Error(), "maximum retries exceeded")
	inner.AssertNumberOfCalls(t, "Submit", 3)
}

func TestRetryClient_Submit_StopsWhenContextCancelled(t *testing.T) {
	inner := &mockClient{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRetryClient(inner).Submit(ctx, submission)

	assert.ErrorIs(t, err, context.Canceled)
	inner.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestRetryClient_ComputeAllocation_Retries(t *testing.T) {
	inner := &mockClient{}
	want := domain.Allocation{PrincipalCents: 100000, InterestCents: 50000}
	inner.On("ComputeAllocation", mock.Anything, "LN-100200", int64(150000)).
		Return(domain.Allocation{}, &application.UpstreamError{StatusCode: http.StatusServiceUnavailable}).
		Once()
	inner.On("ComputeAllocation", mock.Anything, "LN-100200", int64(150000)).Return(want, nil).Once()

	alloc, err := newRetryClient(inner).ComputeAllocation(context.Background(), "LN-100200", 150000)

	require.NoError(t, err)
	assert.Equal(t, want, alloc)
}
