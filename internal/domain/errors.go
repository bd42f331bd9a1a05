package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

var (
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidPolicy        = errors.New("invalid retry policy")
	ErrPolicyNotFound       = errors.New("retry policy not found")
	ErrAttemptNotFound      = errors.New("payment attempt not found")
	ErrEntryNotFound        = errors.New("failure queue entry not found")
	ErrSuspenseNotFound     = errors.New("suspense payment not found")
	ErrBatchNotFound        = errors.New("payment batch not found")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrAllocationMismatch   = errors.New("allocation does not sum to amount")
	ErrAlreadyClaimed       = errors.New("attempt already claimed")
)

const (
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrCodeInvalidPolicy        = "INVALID_POLICY"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeAllocationMismatch   = "ALLOCATION_MISMATCH"
	ErrCodeAlreadyClaimed       = "ALREADY_CLAIMED"
)

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required", field),
		Err:     ErrMissingRequiredField,
	}
}

func NewInvalidAmountError(amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %d", amount),
		Err:     ErrInvalidAmount,
	}
}

func NewInvalidTransitionError(entity string, from, to string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("%s cannot transition from %s to %s", entity, from, to),
		Err:     ErrInvalidTransition,
	}
}

func NewInvalidPolicyError(reason string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidPolicy,
		Message: fmt.Sprintf("invalid retry policy: %s", reason),
		Err:     ErrInvalidPolicy,
	}
}

// NewNotFoundError wraps one of the Err*NotFound sentinels with the missing id.
func NewNotFoundError(sentinel error, id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s: %s", sentinel.Error(), id),
		Err:     sentinel,
	}
}

func NewAllocationMismatchError(amount, total int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeAllocationMismatch,
		Message: fmt.Sprintf("allocation total %d does not match amount %d", total, amount),
		Err:     ErrAllocationMismatch,
	}
}

func NewAlreadyClaimedError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeAlreadyClaimed,
		Message: fmt.Sprintf("%s is already claimed", id),
		Err:     ErrAlreadyClaimed,
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
