package domain

import (
	"slices"
	"time"
)

type FailureStatus string

const (
	FailureActiveRetry FailureStatus = "ACTIVE_RETRY"
	FailureExhausted   FailureStatus = "EXHAUSTED"
	FailureResolved    FailureStatus = "RESOLVED"
	FailureCancelled   FailureStatus = "CANCELLED"
)

// FailureQueueEntry is an exhausted payment waiting for a human.
type FailureQueueEntry struct {
	ID                string
	AttemptID         string
	OriginalPaymentID string
	LoanID            string
	BorrowerName      string
	AmountCents       int64
	Method            PaymentMethod
	Account           AccountDetails
	FailureReason     FailureReason
	FailureCode       string
	FailedAt          time.Time
	RetryCount        int
	NextRetryAt       *time.Time
	Status            FailureStatus
	Escalated         bool
	LastContactAt     *time.Time
	ResolvedBy        string
	ResolvedAt        *time.Time
	Notes             []Note
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Note is an append-only comment left by an operator or the engine.
type Note struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEscalatedEntry builds the queue entry for an attempt that ran out of retries.
func NewEscalatedEntry(id string, a *PaymentAttempt, now time.Time) *FailureQueueEntry {
	e := &FailureQueueEntry{
		ID:                id,
		AttemptID:         a.ID,
		OriginalPaymentID: a.OriginalPaymentID,
		LoanID:            a.LoanID,
		BorrowerName:      a.BorrowerName,
		AmountCents:       a.AmountCents,
		Method:            a.Method,
		Account:           a.Account,
		FailedAt:          now,
		RetryCount:        a.AttemptNumber,
		Status:            FailureExhausted,
		Escalated:         true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if a.LastFailureReason != nil {
		e.FailureReason = *a.LastFailureReason
	}
	if a.LastFailureCode != nil {
		e.FailureCode = *a.LastFailureCode
	}
	return e
}

// NewDirectEscalation queues a failed payment that no policy will retry.
func NewDirectEscalation(id string, p NewAttemptParams) (*FailureQueueEntry, error) {
	if p.LoanID == "" {
		return nil, NewMissingRequiredFieldError("loan id")
	}
	if p.AmountCents <= 0 {
		return nil, NewInvalidAmountError(p.AmountCents)
	}
	return &FailureQueueEntry{
		ID:                id,
		OriginalPaymentID: p.OriginalPaymentID,
		LoanID:            p.LoanID,
		BorrowerName:      p.BorrowerName,
		AmountCents:       p.AmountCents,
		Method:            p.Method,
		Account:           p.Account,
		FailureReason:     p.FailureReason,
		FailureCode:       p.FailureCode,
		FailedAt:          p.FailedAt,
		Status:            FailureExhausted,
		Escalated:         true,
		CreatedAt:         p.FailedAt,
		UpdatedAt:         p.FailedAt,
	}, nil
}

// RecordContact stamps the last time an agent reached the borrower.
func (e *FailureQueueEntry) RecordContact(author, note string, now time.Time) error {
	if e.IsTerminal() {
		return NewInvalidTransitionError("failure entry", string(e.Status), "CONTACTED")
	}
	e.LastContactAt = &now
	e.UpdatedAt = now
	if note != "" {
		e.AddNote(author, note, now)
	}
	return nil
}

// StartManualRetry moves the entry back into active retry.
func (e *FailureQueueEntry) StartManualRetry(nextRetryAt, now time.Time) error {
	if err := e.transition(FailureActiveRetry); err != nil {
		return err
	}
	e.NextRetryAt = &nextRetryAt
	e.UpdatedAt = now
	return nil
}

// Exhaust returns an actively retried entry to the exhausted state.
func (e *FailureQueueEntry) Exhaust(reason FailureReason, code string, retries int, now time.Time) error {
	if err := e.transition(FailureExhausted); err != nil {
		return err
	}
	e.FailureReason = reason
	e.FailureCode = code
	e.RetryCount += retries
	e.FailedAt = now
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return nil
}

func (e *FailureQueueEntry) Resolve(by, note string, now time.Time) error {
	if err := e.transition(FailureResolved); err != nil {
		return err
	}
	e.ResolvedBy = by
	e.ResolvedAt = &now
	e.NextRetryAt = nil
	e.UpdatedAt = now
	if note != "" {
		e.AddNote(by, note, now)
	}
	return nil
}

func (e *FailureQueueEntry) Cancel(by, note string, now time.Time) error {
	if err := e.transition(FailureCancelled); err != nil {
		return err
	}
	e.NextRetryAt = nil
	e.UpdatedAt = now
	if note != "" {
		e.AddNote(by, note, now)
	}
	return nil
}

func (e *FailureQueueEntry) AddNote(author, text string, now time.Time) {
	e.Notes = append(e.Notes, Note{Author: author, Text: text, CreatedAt: now})
	e.UpdatedAt = now
}

func (e *FailureQueueEntry) IsTerminal() bool {
	return e.Status == FailureResolved || e.Status == FailureCancelled
}

func (e *FailureQueueEntry) transition(target FailureStatus) error {
	var allowed []FailureStatus
	switch e.Status {
	case FailureExhausted:
		allowed = []FailureStatus{FailureActiveRetry, FailureResolved, FailureCancelled}
	case FailureActiveRetry:
		allowed = []FailureStatus{FailureExhausted, FailureResolved, FailureCancelled}
	}
	if !slices.Contains(allowed, target) {
		return NewInvalidTransitionError("failure entry", string(e.Status), string(target))
	}
	e.Status = target
	return nil
}
