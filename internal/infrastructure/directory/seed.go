package directory

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

type seedFile struct {
	Loans []seedLoan `yaml:"loans"`
}

type seedLoan struct {
	LoanID                string `yaml:"loan_id"`
	LoanNumber            string `yaml:"loan_number"`
	BorrowerName          string `yaml:"borrower_name"`
	BorrowerEmail         string `yaml:"borrower_email"`
	BorrowerPhone         string `yaml:"borrower_phone"`
	AccountNumber         string `yaml:"account_number"`
	RoutingNumber         string `yaml:"routing_number"`
	CurrentBalanceCents   int64  `yaml:"current_balance_cents"`
	PrincipalBalanceCents int64  `yaml:"principal_balance_cents"`
	AccruedInterestCents  int64  `yaml:"accrued_interest_cents"`
	OutstandingFeesCents  int64  `yaml:"outstanding_fees_cents"`
	ExpectedPaymentCents  int64  `yaml:"expected_payment_cents"`
	NextPaymentDue        string `yaml:"next_payment_due"`
}

// ReadLoans parses a YAML loan export. next_payment_due accepts a date
// (2006-01-02) or an RFC 3339 timestamp.
func ReadLoans(r io.Reader) ([]domain.LoanSummary, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid loan yaml: %w", err)
	}

	out := make([]domain.LoanSummary, 0, len(file.Loans))
	for i, l := range file.Loans {
		if l.LoanID == "" {
			return nil, fmt.Errorf("loan %d: loan_id is required", i+1)
		}
		loan := domain.LoanSummary{
			LoanID:                l.LoanID,
			LoanNumber:            l.LoanNumber,
			BorrowerName:          l.BorrowerName,
			BorrowerEmail:         l.BorrowerEmail,
			BorrowerPhone:         l.BorrowerPhone,
			AccountNumber:         l.AccountNumber,
			RoutingNumber:         l.RoutingNumber,
			CurrentBalanceCents:   l.CurrentBalanceCents,
			PrincipalBalanceCents: l.PrincipalBalanceCents,
			AccruedInterestCents:  l.AccruedInterestCents,
			OutstandingFeesCents:  l.OutstandingFeesCents,
			ExpectedPaymentCents:  l.ExpectedPaymentCents,
		}
		if l.NextPaymentDue != "" {
			due, err := parseDue(l.NextPaymentDue)
			if err != nil {
				return nil, fmt.Errorf("loan %s: %w", l.LoanID, err)
			}
			loan.NextPaymentDue = due
		}
		out = append(out, loan)
	}
	return out, nil
}

func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("next_payment_due %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// UpsertAll writes every loan in one transaction.
func (s *Store) UpsertAll(ctx context.Context, loans []domain.LoanSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	for _, loan := range loans {
		if err := upsert(ctx, tx, loan); err != nil {
			return err
		}
	}
	return tx.Commit()
}
