package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
	"unicode"
)

type MatchTier string

const (
	TierStrong   MatchTier = "STRONG"
	TierModerate MatchTier = "MODERATE"
	TierWeak     MatchTier = "WEAK"
)

// Reasons attached to a candidate, one per contributing signal.
const (
	ReasonExactAmount    = "Exact payment amount match"
	ReasonAmountRange    = "Payment amount within expected range"
	ReasonNameExact      = "Borrower name match"
	ReasonNamePartial    = "Partial borrower name match"
	ReasonEmail          = "Borrower email match"
	ReasonPhone          = "Borrower phone match"
	ReasonAccountPartial = "Account number ending matches"
	ReasonRouting        = "Routing number match"
)

// LoanMatch is a scored candidate loan for a suspense payment.
type LoanMatch struct {
	LoanID               string    `json:"loan_id"`
	LoanNumber           string    `json:"loan_number,omitempty"`
	BorrowerName         string    `json:"borrower_name"`
	CurrentBalanceCents  int64     `json:"current_balance_cents"`
	NextPaymentDue       time.Time `json:"next_payment_due"`
	ExpectedPaymentCents int64     `json:"expected_payment_cents"`
	Confidence           int       `json:"confidence"`
	Tier                 MatchTier `json:"tier"`
	Reasons              []string  `json:"reasons"`
}

// ScoringWeights are the points each signal adds to a candidate's confidence.
// Exact and partial variants of a signal never both apply.
type ScoringWeights struct {
	ExactAmount     int
	AmountRange     int
	NameExact       int
	NamePartial     int
	Contact         int
	AccountPartial  int
	RoutingMatch    int
	AmountTolerance float64
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		ExactAmount:     45,
		AmountRange:     30,
		NameExact:       40,
		NamePartial:     20,
		Contact:         20,
		AccountPartial:  35,
		RoutingMatch:    10,
		AmountTolerance: 0.05,
	}
}

func TierFor(confidence int) MatchTier {
	switch {
	case confidence > 80:
		return TierStrong
	case confidence >= 60:
		return TierModerate
	default:
		return TierWeak
	}
}

// Score rates one loan against the payment's amount and identity hints.
func (w ScoringWeights) Score(amount int64, id IdentitySignals, loan LoanSummary) LoanMatch {
	score := 0
	var reasons []string
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, reason)
	}

	switch {
	case loan.ExpectedPaymentCents > 0 && amount == loan.ExpectedPaymentCents:
		add(w.ExactAmount, ReasonExactAmount)
	case w.withinTolerance(amount, loan.ExpectedPaymentCents):
		add(w.AmountRange, ReasonAmountRange)
	}

	paid, owner := normalizeName(id.Name), normalizeName(loan.BorrowerName)
	switch {
	case paid != "" && paid == owner:
		add(w.NameExact, ReasonNameExact)
	case sharesToken(paid, owner):
		add(w.NamePartial, ReasonNamePartial)
	}

	switch {
	case id.Email != "" && strings.EqualFold(strings.TrimSpace(id.Email), strings.TrimSpace(loan.BorrowerEmail)):
		add(w.Contact, ReasonEmail)
	case phoneMatches(id.Phone, loan.BorrowerPhone):
		add(w.Contact, ReasonPhone)
	}

	if lastFourMatch(id.AccountNumber, loan.AccountNumber) {
		add(w.AccountPartial, ReasonAccountPartial)
	}
	if r := digitsOnly(id.RoutingNumber); r != "" && r == digitsOnly(loan.RoutingNumber) {
		add(w.RoutingMatch, ReasonRouting)
	}

	score = max(0, min(100, score))
	return LoanMatch{
		LoanID:               loan.LoanID,
		LoanNumber:           loan.LoanNumber,
		BorrowerName:         loan.BorrowerName,
		CurrentBalanceCents:  loan.CurrentBalanceCents,
		NextPaymentDue:       loan.NextPaymentDue,
		ExpectedPaymentCents: loan.ExpectedPaymentCents,
		Confidence:           score,
		Tier:                 TierFor(score),
		Reasons:              reasons,
	}
}

// Rank scores every loan, drops those with no signal at all and orders the
// rest by confidence, then most recent due date, then loan id.
func (w ScoringWeights) Rank(amount int64, id IdentitySignals, loans []LoanSummary) []LoanMatch {
	matches := make([]LoanMatch, 0, len(loans))
	seen := make(map[string]bool, len(loans))
	for _, l := range loans {
		if seen[l.LoanID] {
			continue
		}
		seen[l.LoanID] = true
		m := w.Score(amount, id, l)
		if len(m.Reasons) == 0 {
			continue
		}
		matches = append(matches, m)
	}
	slices.SortStableFunc(matches, func(a, b LoanMatch) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := b.NextPaymentDue.Compare(a.NextPaymentDue); c != 0 {
			return c
		}
		return cmp.Compare(a.LoanID, b.LoanID)
	})
	return matches
}

func (w ScoringWeights) withinTolerance(amount, expected int64) bool {
	if expected <= 0 || w.AmountTolerance <= 0 {
		return false
	}
	diff := amount - expected
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) <= float64(expected)*w.AmountTolerance
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func sharesToken(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	owner := strings.Fields(b)
	for _, t := range strings.Fields(a) {
		if len(t) > 1 && slices.Contains(owner, t) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func phoneMatches(a, b string) bool {
	a, b = digitsOnly(a), digitsOnly(b)
	if len(a) < 7 || len(b) < 7 {
		return false
	}
	// a leading country code does not matter
	if len(a) >= 10 && len(b) >= 10 {
		return a[len(a)-10:] == b[len(b)-10:]
	}
	return a == b
}

func lastFourMatch(a, b string) bool {
	a, b = digitsOnly(a), digitsOnly(b)
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	return a[len(a)-4:] == b[len(b)-4:]
}
