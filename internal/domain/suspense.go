package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type SuspenseStatus string

const (
	SuspenseUnmatched       SuspenseStatus = "UNMATCHED"
	SuspenseResearching     SuspenseStatus = "RESEARCHING"
	SuspensePendingApproval SuspenseStatus = "PENDING_APPROVAL"
	SuspenseApplying        SuspenseStatus = "APPLYING"
	SuspenseMatched         SuspenseStatus = "MATCHED"
	SuspenseRejected        SuspenseStatus = "REJECTED"
	SuspenseRefunded        SuspenseStatus = "REFUNDED"
)

// ApplyClaimTimeout is how long an apply may hold a payment before another
// apply to the same loan may take the claim over.
const ApplyClaimTimeout = 5 * time.Minute

// researchStatuses can be set freely by an operator while working a payment.
var researchStatuses = []SuspenseStatus{SuspenseUnmatched, SuspenseResearching, SuspensePendingApproval}

// SuspensePayment is money received that is not yet attributed to a loan.
type SuspensePayment struct {
	ID              string
	AmountCents     int64
	ReceivedAt      time.Time
	Method          PaymentMethod
	ReferenceNumber string
	AccountNumber   string
	RoutingNumber   string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Source          string
	Status          SuspenseStatus
	ReasonCode      string
	Notes           []Note
	AssignedTo      string
	Matches         []LoanMatch
	Applied         *AppliedRecord
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AppliedRecord captures where a suspense payment finally landed.
type AppliedRecord struct {
	LoanID     string     `json:"loan_id"`
	AppliedBy  string     `json:"applied_by"`
	AppliedAt  time.Time  `json:"applied_at"`
	Allocation Allocation `json:"allocation"`
	// ClaimedFrom is the status an unfinished apply returns the payment to.
	ClaimedFrom SuspenseStatus `json:"claimed_from,omitempty"`
}

func NewSuspensePayment(id string, amount int64, receivedAt time.Time) (*SuspensePayment, error) {
	if id == "" {
		return nil, NewMissingRequiredFieldError("suspense id")
	}
	if amount <= 0 {
		return nil, NewInvalidAmountError(amount)
	}
	return &SuspensePayment{
		ID:          id,
		AmountCents: amount,
		ReceivedAt:  receivedAt,
		Status:      SuspenseUnmatched,
		CreatedAt:   receivedAt,
		UpdatedAt:   receivedAt,
	}, nil
}

// Identity returns the borrower hints carried by the payment.
func (s *SuspensePayment) Identity() IdentitySignals {
	return IdentitySignals{
		Name:          s.CustomerName,
		Email:         s.CustomerEmail,
		Phone:         s.CustomerPhone,
		AccountNumber: s.AccountNumber,
		RoutingNumber: s.RoutingNumber,
	}
}

// AgeDays is the whole number of days since the payment was received.
func (s *SuspensePayment) AgeDays(now time.Time) int {
	if now.Before(s.ReceivedAt) {
		return 0
	}
	return int(now.Sub(s.ReceivedAt) / (24 * time.Hour))
}

// BestConfidence is the top candidate's score, or 0 without candidates.
func (s *SuspensePayment) BestConfidence() int {
	if len(s.Matches) == 0 {
		return 0
	}
	return s.Matches[0].Confidence
}

// SetMatches replaces the candidate list. Matching never changes status.
func (s *SuspensePayment) SetMatches(matches []LoanMatch, now time.Time) error {
	if s.IsClosed() {
		return NewInvalidTransitionError("suspense payment", string(s.Status), "REMATCH")
	}
	s.Matches = matches
	s.UpdatedAt = now
	return nil
}

// ClaimForApply reserves the payment for posting to loanID. While the claim
// is held the payment is APPLYING and every other action on it fails. A claim
// left behind by an interrupted apply can be taken over for the same loan once
// it is older than ApplyClaimTimeout.
func (s *SuspensePayment) ClaimForApply(loanID, appliedBy string, alloc Allocation, now time.Time) error {
	if loanID == "" {
		return NewMissingRequiredFieldError("loan id")
	}
	if err := alloc.Validate(s.AmountCents); err != nil {
		return err
	}

	from := s.Status
	if s.Status == SuspenseApplying {
		if s.Applied == nil || s.Applied.LoanID != loanID || now.Sub(s.Applied.AppliedAt) < ApplyClaimTimeout {
			return NewAlreadyClaimedError(s.ID)
		}
		from = s.Applied.ClaimedFrom
	} else if err := s.transition(SuspenseApplying); err != nil {
		return err
	}

	s.Applied = &AppliedRecord{
		LoanID:      loanID,
		AppliedBy:   appliedBy,
		AppliedAt:   now,
		Allocation:  alloc,
		ClaimedFrom: from,
	}
	s.UpdatedAt = now
	return nil
}

// Apply attributes the payment to a loan with the given allocation. A payment
// claimed for an apply only completes for the loan it was claimed for.
func (s *SuspensePayment) Apply(loanID, appliedBy string, alloc Allocation, now time.Time) error {
	if loanID == "" {
		return NewMissingRequiredFieldError("loan id")
	}
	if err := alloc.Validate(s.AmountCents); err != nil {
		return err
	}
	if s.Status == SuspenseApplying && (s.Applied == nil || s.Applied.LoanID != loanID) {
		return NewAlreadyClaimedError(s.ID)
	}
	if err := s.transition(SuspenseMatched); err != nil {
		return err
	}
	s.Applied = &AppliedRecord{
		LoanID:     loanID,
		AppliedBy:  appliedBy,
		AppliedAt:  now,
		Allocation: alloc,
	}
	s.UpdatedAt = now
	return nil
}

// ReleaseApply drops the claim of an apply whose posting failed and puts the
// payment back where it was.
func (s *SuspensePayment) ReleaseApply(by, reason string, now time.Time) error {
	if s.Status != SuspenseApplying || s.Applied == nil {
		return NewInvalidTransitionError("suspense payment", string(s.Status), "RELEASE")
	}
	loanID := s.Applied.LoanID
	target := s.Applied.ClaimedFrom
	if target == "" {
		target = SuspenseUnmatched
	}
	if err := s.transition(target); err != nil {
		return err
	}
	s.Applied = nil
	s.AddNote(by, fmt.Sprintf("Apply to loan %s failed: %s", loanID, reason), now)
	return nil
}

// Reject closes the payment without applying it. History is kept as a note.
func (s *SuspensePayment) Reject(by, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return NewMissingRequiredFieldError("rejection reason")
	}
	if err := s.transition(SuspenseRejected); err != nil {
		return err
	}
	s.AddNote(by, "Rejected: "+reason, now)
	return nil
}

// MarkRefunded records that a rejected payment was returned to the sender.
func (s *SuspensePayment) MarkRefunded(by string, now time.Time) error {
	if err := s.transition(SuspenseRefunded); err != nil {
		return err
	}
	s.AddNote(by, "Refunded to sender", now)
	return nil
}

// SetResearchStatus moves the payment among the research statuses only.
func (s *SuspensePayment) SetResearchStatus(target SuspenseStatus, now time.Time) error {
	if !slices.Contains(researchStatuses, target) || s.Status == SuspenseApplying {
		return NewInvalidTransitionError("suspense payment", string(s.Status), string(target))
	}
	if err := s.transition(target); err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}

func (s *SuspensePayment) Assign(handler string, now time.Time) error {
	if s.IsClosed() {
		return NewInvalidTransitionError("suspense payment", string(s.Status), "ASSIGNED")
	}
	s.AssignedTo = handler
	s.UpdatedAt = now
	return nil
}

func (s *SuspensePayment) AddNote(author, text string, now time.Time) {
	s.Notes = append(s.Notes, Note{Author: author, Text: text, CreatedAt: now})
	s.UpdatedAt = now
}

// IsClosed reports a payment that can no longer be worked.
func (s *SuspensePayment) IsClosed() bool {
	switch s.Status {
	case SuspenseApplying, SuspenseMatched, SuspenseRejected, SuspenseRefunded:
		return true
	}
	return false
}

func (s *SuspensePayment) transition(target SuspenseStatus) error {
	var allowed []SuspenseStatus
	switch s.Status {
	case SuspenseUnmatched, SuspenseResearching, SuspensePendingApproval:
		allowed = append(slices.Clone(researchStatuses), SuspenseApplying, SuspenseMatched, SuspenseRejected)
	case SuspenseApplying:
		allowed = append(slices.Clone(researchStatuses), SuspenseMatched)
	case SuspenseRejected:
		allowed = []SuspenseStatus{SuspenseRefunded}
	}
	if !slices.Contains(allowed, target) {
		return NewInvalidTransitionError("suspense payment", string(s.Status), string(target))
	}
	s.Status = target
	return nil
}
