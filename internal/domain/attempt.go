// Package domain encodes the payment recovery entities and their lifecycles
package domain

import (
	"errors"
	"maps"
	"slices"
	"time"
)

// AttemptStatus represents the current state of a retry attempt in its lifecycle
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "PENDING"
	AttemptProcessing AttemptStatus = "PROCESSING"
	AttemptSuccess    AttemptStatus = "SUCCESS"
	AttemptFailed     AttemptStatus = "FAILED"
	AttemptCancelled  AttemptStatus = "CANCELLED"
	AttemptEscalated  AttemptStatus = "ESCALATED"
)

// Metadata keys written by the engine.
const (
	MetaPolicyMissing   = "policy_missing"
	MetaCancelReason    = "cancel_reason"
	MetaPreviousAttempt = "previous_attempt_id"
	MetaManualRetryOf   = "manual_retry_of"
	MetaReclaimedAt     = "reclaimed_at"
)

type PaymentAttempt struct {
	ID                string
	LoanID            string
	OriginalPaymentID string
	BorrowerName      string
	AmountCents       int64
	Method            PaymentMethod
	Account           AccountDetails
	AttemptNumber     int
	MaxRetries        int
	Status            AttemptStatus
	PolicyID          string

	ScheduledFor time.Time
	ProcessedAt  *time.Time
	NextRetryAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	LastFailureReason *FailureReason
	LastFailureCode   *string
	TransactionID     *string

	BorrowerNotified bool
	Escalated        bool
	PolicyAnomaly    bool
	Metadata         map[string]string
}

// NewAttemptParams carries what is known when an originating payment fails.
type NewAttemptParams struct {
	ID                string
	LoanID            string
	OriginalPaymentID string
	BorrowerName      string
	AmountCents       int64
	Method            PaymentMethod
	Account           AccountDetails
	FailureReason     FailureReason
	FailureCode       string
	Policy            *RetryPolicy
	FailedAt          time.Time
}

// NewPaymentAttempt creates attempt 1 for a failed payment, scheduled after
// the policy's initial delay.
func NewPaymentAttempt(p NewAttemptParams) (*PaymentAttempt, error) {
	if p.ID == "" {
		return nil, errors.New("attempt ID is required")
	}
	if p.LoanID == "" {
		return nil, NewMissingRequiredFieldError("loan id")
	}
	if p.OriginalPaymentID == "" {
		return nil, NewMissingRequiredFieldError("original payment id")
	}
	if p.AmountCents <= 0 {
		return nil, NewInvalidAmountError(p.AmountCents)
	}
	if p.Policy == nil {
		return nil, NewMissingRequiredFieldError("policy")
	}

	reason := p.FailureReason
	a := &PaymentAttempt{
		ID:                p.ID,
		LoanID:            p.LoanID,
		OriginalPaymentID: p.OriginalPaymentID,
		BorrowerName:      p.BorrowerName,
		AmountCents:       p.AmountCents,
		Method:            p.Method,
		Account:           p.Account,
		AttemptNumber:     1,
		MaxRetries:        p.Policy.MaxAttempts,
		Status:            AttemptPending,
		PolicyID:          p.Policy.ID,
		ScheduledFor:      p.FailedAt.Add(p.Policy.InitialDelay),
		CreatedAt:         p.FailedAt,
		UpdatedAt:         p.FailedAt,
		LastFailureReason: &reason,
		Metadata:          map[string]string{},
	}
	if p.FailureCode != "" {
		code := p.FailureCode
		a.LastFailureCode = &code
	}
	next := a.ScheduledFor
	a.NextRetryAt = &next
	return a, nil
}

// DueAt is the moment the attempt becomes eligible for processing.
func (a *PaymentAttempt) DueAt() time.Time {
	if a.NextRetryAt != nil {
		return *a.NextRetryAt
	}
	return a.ScheduledFor
}

func (a *PaymentAttempt) IsDue(now time.Time) bool {
	return a.Status == AttemptPending && !now.Before(a.DueAt())
}

// MarkProcessing claims the attempt for submission.
func (a *PaymentAttempt) MarkProcessing(now time.Time) error {
	if err := a.transition(AttemptProcessing); err != nil {
		return err
	}
	a.NextRetryAt = nil
	a.UpdatedAt = now
	return nil
}

// Succeed records a successful collection.
func (a *PaymentAttempt) Succeed(transactionID string, now time.Time) error {
	if err := a.transition(AttemptSuccess); err != nil {
		return err
	}
	a.TransactionID = &transactionID
	a.ProcessedAt = &now
	a.UpdatedAt = now
	return nil
}

// Fail records a failed try. The record is terminal; a successor carries the retry.
func (a *PaymentAttempt) Fail(reason FailureReason, code string, now time.Time) error {
	if err := a.transition(AttemptFailed); err != nil {
		return err
	}
	a.recordFailure(reason, code, now)
	return nil
}

// Escalate records the final failure of an exhausted attempt.
func (a *PaymentAttempt) Escalate(reason FailureReason, code string, now time.Time) error {
	if err := a.transition(AttemptEscalated); err != nil {
		return err
	}
	a.recordFailure(reason, code, now)
	a.Escalated = true
	return nil
}

// Cancel stops a pending attempt for good.
func (a *PaymentAttempt) Cancel(reason string, now time.Time) error {
	if err := a.transition(AttemptCancelled); err != nil {
		return err
	}
	a.NextRetryAt = nil
	a.UpdatedAt = now
	if reason != "" {
		a.setMeta(MetaCancelReason, reason)
	}
	return nil
}

// IsStaleClaim reports whether the attempt has been PROCESSING since cutoff
// or earlier. MarkProcessing stamps UpdatedAt with the claim time.
func (a *PaymentAttempt) IsStaleClaim(cutoff time.Time) bool {
	return a.Status == AttemptProcessing && !a.UpdatedAt.After(cutoff)
}

// Reclaim takes over a stale PROCESSING claim so the submission can be sent
// again under the same idempotency key.
func (a *PaymentAttempt) Reclaim(cutoff, now time.Time) error {
	if !a.IsStaleClaim(cutoff) {
		return NewAlreadyClaimedError(a.ID)
	}
	a.UpdatedAt = now
	a.setMeta(MetaReclaimedAt, now.UTC().Format(time.RFC3339))
	return nil
}

// Exhausted reports whether a failure of this attempt must escalate.
func (a *PaymentAttempt) Exhausted() bool {
	return a.AttemptNumber >= a.MaxRetries
}

// Successor builds the next pending attempt of the chain.
func (a *PaymentAttempt) Successor(id string, nextRetryAt, now time.Time) (*PaymentAttempt, error) {
	if a.Status != AttemptFailed {
		return nil, NewInvalidTransitionError("attempt", string(a.Status), string(AttemptPending))
	}
	if a.Exhausted() {
		return nil, NewInvalidTransitionError("attempt", string(a.Status), string(AttemptPending))
	}

	next := &PaymentAttempt{
		ID:                id,
		LoanID:            a.LoanID,
		OriginalPaymentID: a.OriginalPaymentID,
		BorrowerName:      a.BorrowerName,
		AmountCents:       a.AmountCents,
		Method:            a.Method,
		Account:           a.Account,
		AttemptNumber:     a.AttemptNumber + 1,
		MaxRetries:        a.MaxRetries,
		Status:            AttemptPending,
		PolicyID:          a.PolicyID,
		ScheduledFor:      nextRetryAt,
		NextRetryAt:       &nextRetryAt,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastFailureReason: a.LastFailureReason,
		LastFailureCode:   a.LastFailureCode,
		PolicyAnomaly:     a.PolicyAnomaly,
		Metadata:          maps.Clone(a.Metadata),
	}
	if next.Metadata == nil {
		next.Metadata = map[string]string{}
	}
	delete(next.Metadata, MetaCancelReason)
	next.Metadata[MetaPreviousAttempt] = a.ID
	return next, nil
}

// FlagPolicyMissing marks the attempt as running on fallback settings.
func (a *PaymentAttempt) FlagPolicyMissing() {
	a.PolicyAnomaly = true
	a.setMeta(MetaPolicyMissing, "true")
}

func (a *PaymentAttempt) IsTerminal() bool {
	switch a.Status {
	case AttemptSuccess, AttemptFailed, AttemptCancelled, AttemptEscalated:
		return true
	default:
		return false
	}
}

func (a *PaymentAttempt) recordFailure(reason FailureReason, code string, now time.Time) {
	a.LastFailureReason = &reason
	if code != "" {
		a.LastFailureCode = &code
	}
	a.NextRetryAt = nil
	a.ProcessedAt = &now
	a.UpdatedAt = now
}

func (a *PaymentAttempt) setMeta(key, value string) {
	if a.Metadata == nil {
		a.Metadata = map[string]string{}
	}
	a.Metadata[key] = value
}

func (a *PaymentAttempt) transition(target AttemptStatus) error {
	if err := a.canTransitionTo(target); err != nil {
		return err
	}
	a.Status = target
	return nil
}

// defines the attempt statuses that can be transitioned to
func (a *PaymentAttempt) canTransitionTo(target AttemptStatus) error {
	switch a.Status {
	case AttemptPending:
		return a.allow(target, AttemptProcessing, AttemptCancelled)
	case AttemptProcessing:
		return a.allow(target, AttemptSuccess, AttemptFailed, AttemptEscalated)
	}
	return NewInvalidTransitionError("attempt", string(a.Status), string(target))
}

func (a *PaymentAttempt) allow(target AttemptStatus, allowed ...AttemptStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidTransitionError("attempt", string(a.Status), string(target))
}
