package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// PaymentMethod is the rail a payment was (or will be) collected over.
type PaymentMethod string

const (
	MethodACH   PaymentMethod = "ACH"
	MethodWire  PaymentMethod = "WIRE"
	MethodCard  PaymentMethod = "CARD"
	MethodCheck PaymentMethod = "CHECK"
)

// AllPaymentMethods lists the methods accepted anywhere in the engine.
var AllPaymentMethods = []PaymentMethod{MethodACH, MethodWire, MethodCard, MethodCheck}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(AllPaymentMethods, m) {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return m, nil
}

// RequiresBankDetails reports whether account and routing numbers are mandatory.
func (m PaymentMethod) RequiresBankDetails() bool {
	return m == MethodACH || m == MethodWire
}

// FailureReason is why a payment could not be collected.
type FailureReason string

const (
	ReasonInsufficientFunds FailureReason = "INSUFFICIENT_FUNDS"
	ReasonAccountClosed     FailureReason = "ACCOUNT_CLOSED"
	ReasonCardExpired       FailureReason = "CARD_EXPIRED"
	ReasonCardDeclined      FailureReason = "CARD_DECLINED"
	ReasonInvalidAccount    FailureReason = "INVALID_ACCOUNT"
	ReasonStopPayment       FailureReason = "STOP_PAYMENT"
	ReasonNetworkError      FailureReason = "NETWORK_ERROR"
	ReasonTimeout           FailureReason = "TIMEOUT"
	ReasonOther             FailureReason = "OTHER"
)

// AccountDetails carries the bank/card identifiers needed to resubmit a payment.
type AccountDetails struct {
	AccountNumber string `json:"account_number,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

// Allocation splits an applied amount across loan buckets.
type Allocation struct {
	PrincipalCents int64 `json:"principal_cents"`
	InterestCents  int64 `json:"interest_cents"`
	FeesCents      int64 `json:"fees_cents"`
	EscrowCents    int64 `json:"escrow_cents"`
}

func (a Allocation) Total() int64 {
	return a.PrincipalCents + a.InterestCents + a.FeesCents + a.EscrowCents
}

// Validate checks the allocation sums exactly to amount and has no negative bucket.
func (a Allocation) Validate(amount int64) error {
	if a.PrincipalCents < 0 || a.InterestCents < 0 || a.FeesCents < 0 || a.EscrowCents < 0 {
		return NewAllocationMismatchError(amount, a.Total())
	}
	if a.Total() != amount {
		return NewAllocationMismatchError(amount, a.Total())
	}
	return nil
}

// WaterfallAllocation applies amount to principal, then interest, then fees,
// and puts any remainder into escrow. The result always sums to amount.
func WaterfallAllocation(amount int64, loan LoanSummary) Allocation {
	remaining := amount
	take := func(limit int64) int64 {
		if limit <= 0 || remaining <= 0 {
			return 0
		}
		n := min(limit, remaining)
		remaining -= n
		return n
	}

	a := Allocation{
		PrincipalCents: take(loan.PrincipalBalanceCents),
		InterestCents:  take(loan.AccruedInterestCents),
		FeesCents:      take(loan.OutstandingFeesCents),
	}
	a.EscrowCents = remaining
	return a
}

// LoanSummary is the loan directory's view of a loan.
type LoanSummary struct {
	LoanID                string
	LoanNumber            string
	BorrowerName          string
	BorrowerEmail         string
	BorrowerPhone         string
	AccountNumber         string
	RoutingNumber         string
	CurrentBalanceCents   int64
	PrincipalBalanceCents int64
	AccruedInterestCents  int64
	OutstandingFeesCents  int64
	ExpectedPaymentCents  int64
	NextPaymentDue        time.Time
}

// IdentitySignals are the borrower hints carried by an unidentified payment.
type IdentitySignals struct {
	Name          string
	Email         string
	Phone         string
	AccountNumber string
	RoutingNumber string
}

// FormatCents renders minor units as a dollar string, e.g. 150000 -> "1500.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
