package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// UpstreamError is a non-decline failure returned by a servicing collaborator.
type UpstreamError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

func IsUpstreamError(err error) (*UpstreamError, bool) {
	var upErr *UpstreamError
	ok := errors.As(err, &upErr)
	return upErr, ok
}

// ErrorCategory represents the nature of an error for retry logic
type ErrorCategory string

const (
	CategoryTransient      ErrorCategory = "TRANSIENT"
	CategoryPermanent      ErrorCategory = "PERMANENT"
	CategoryBusinessRule   ErrorCategory = "BUSINESS_RULE"
	CategoryClientError    ErrorCategory = "CLIENT_ERROR"
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	var declined *PaymentFailure
	if errors.As(err, &declined) {
		switch declined.Reason {
		case domain.ReasonInsufficientFunds, domain.ReasonNetworkError, domain.ReasonTimeout:
			return CategoryTransient
		default:
			return CategoryPermanent
		}
	}

	if errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrAlreadyClaimed) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrAllocationMismatch) ||
		errors.Is(err, domain.ErrInvalidPolicy) {
		return CategoryBusinessRule
	}

	if isNotFound(err) || errors.Is(err, domain.ErrMissingRequiredField) {
		return CategoryClientError
	}

	if svcErr, ok := IsServiceError(err); ok {
		switch svcErr.Code {
		case ErrCodeInvalidInput, ErrCodeNotFound:
			return CategoryClientError
		case ErrCodeInvalidState, ErrCodeBatchRunning:
			return CategoryBusinessRule
		case ErrCodeInternal:
			return CategoryInfrastructure
		case ErrCodeTimeout, ErrCodeUpstreamFailure:
			return CategoryTransient
		}
	}

	if upErr, ok := IsUpstreamError(err); ok {
		switch {
		case upErr.StatusCode >= 500, upErr.StatusCode == http.StatusTooManyRequests:
			return CategoryTransient
		case upErr.StatusCode == http.StatusNotFound:
			return CategoryClientError
		default:
			return CategoryPermanent
		}
	}

	// Default: Transient (safe fallback)
	return CategoryTransient
}

// IsRetryable returns true if the error category suggests retry
func IsRetryable(err error) bool {
	category := CategorizeError(err)
	return category == CategoryTransient || category == CategoryInfrastructure
}

// FailureFromError turns a collaborator error into the reason and code
// recorded on an attempt.
func FailureFromError(err error) (domain.FailureReason, string) {
	var declined *PaymentFailure
	if errors.As(err, &declined) {
		reason := declined.Reason
		if reason == "" {
			reason = domain.ReasonOther
		}
		return reason, declined.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonTimeout, "TIMEOUT"
	}
	return domain.ReasonNetworkError, ToErrorCode(err)
}

// ToHTTPStatus maps error to appropriate HTTP status code
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}

	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrMissingRequiredField),
		errors.Is(err, domain.ErrInvalidPolicy),
		errors.Is(err, domain.ErrAllocationMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyClaimed):
		return http.StatusConflict
	case isNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	var declined *PaymentFailure
	if errors.As(err, &declined) {
		return http.StatusUnprocessableEntity
	}

	if _, ok := IsUpstreamError(err); ok {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

// ToErrorCode clear error code for API responses
func ToErrorCode(err error) string {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	if isNotFound(err) {
		return domain.ErrCodeNotFound
	}

	var declined *PaymentFailure
	if errors.As(err, &declined) {
		return "PAYMENT_DECLINED"
	}

	if upErr, ok := IsUpstreamError(err); ok {
		return strings.ToUpper(upErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}

	return "INTERNAL_ERROR"
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrPolicyNotFound) ||
		errors.Is(err, domain.ErrAttemptNotFound) ||
		errors.Is(err, domain.ErrEntryNotFound) ||
		errors.Is(err, domain.ErrSuspenseNotFound) ||
		errors.Is(err, domain.ErrBatchNotFound) ||
		errors.Is(err, domain.ErrLoanNotFound)
}
