package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"insufficient funds decline", &PaymentFailure{Reason: domain.ReasonInsufficientFunds}, CategoryTransient},
		{"closed account decline", &PaymentFailure{Reason: domain.ReasonAccountClosed}, CategoryPermanent},
		{"invalid transition", domain.NewInvalidTransitionError("attempt", "SUCCESS", "PENDING"), CategoryBusinessRule},
		{"not found", domain.NewNotFoundError(domain.ErrAttemptNotFound, "att-1"), CategoryClientError},
		{"invalid input", NewInvalidInputError(errors.New("bad")), CategoryClientError},
		{"internal", NewInternalError(errors.New("disk")), CategoryInfrastructure},
		{"upstream 503", &UpstreamError{Code: "unavailable", StatusCode: http.StatusServiceUnavailable}, CategoryTransient},
		{"upstream 429", &UpstreamError{Code: "rate_limited", StatusCode: http.StatusTooManyRequests}, CategoryTransient},
		{"upstream 404", &UpstreamError{Code: "missing", StatusCode: http.StatusNotFound}, CategoryClientError},
		{"upstream 400", &UpstreamError{Code: "bad_request", StatusCode: http.StatusBadRequest}, CategoryPermanent},
		{"unknown", errors.New("something odd"), CategoryTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.err))
		})
	}
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"service error keeps its status", NewInvalidStateError(errors.New("closed")), http.StatusConflict},
		{"wrapped not found", fmt.Errorf("load: %w", domain.NewNotFoundError(domain.ErrSuspenseNotFound, "s-1")), http.StatusNotFound},
		{"invalid amount", domain.NewInvalidAmountError(-1), http.StatusBadRequest},
		{"already claimed", domain.NewAlreadyClaimedError("att-1"), http.StatusConflict},
		{"decline", &PaymentFailure{Reason: domain.ReasonInsufficientFunds}, http.StatusUnprocessableEntity},
		{"upstream", &UpstreamError{Code: "boom", StatusCode: 500}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTTPStatus(tt.err))
		})
	}
}

func TestToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, ToErrorCode(NewNotFoundError(errors.New("x"))))
	assert.Equal(t, domain.ErrCodeInvalidAmount, ToErrorCode(domain.NewInvalidAmountError(0)))
	assert.Equal(t, "PAYMENT_DECLINED", ToErrorCode(&PaymentFailure{Reason: domain.ReasonOther}))
	assert.Equal(t, "WEBHOOK_REJECTED", ToErrorCode(&UpstreamError{Code: "webhook_rejected"}))
	assert.Equal(t, "INTERNAL_ERROR", ToErrorCode(errors.New("boom")))
}

func TestFailureFromError(t *testing.T) {
	reason, code := FailureFromError(&PaymentFailure{Reason: domain.ReasonInsufficientFunds, Code: "R01"})
	assert.Equal(t, domain.ReasonInsufficientFunds, reason)
	assert.Equal(t, "R01", code)

	reason, _ = FailureFromError(&PaymentFailure{Code: "X"})
	assert.Equal(t, domain.ReasonOther, reason)

	reason, code = FailureFromError(fmt.Errorf("submit: %w", context.DeadlineExceeded))
	assert.Equal(t, domain.ReasonTimeout, reason)
	assert.Equal(t, "TIMEOUT", code)

	reason, code = FailureFromError(&UpstreamError{Code: "unavailable", StatusCode: 503})
	assert.Equal(t, domain.ReasonNetworkError, reason)
	assert.Equal(t, "UNAVAILABLE", code)
}
