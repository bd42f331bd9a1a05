package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

var nextDue = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedLoans(t *testing.T, s *Store) {
	t.Helper()
	loans := []domain.LoanSummary{
		{
			LoanID: "loan-1", LoanNumber: "LN-100200", BorrowerName: "Ada Obi",
			BorrowerEmail: "ada@example.com", BorrowerPhone: "+1 (555) 010-2030",
			AccountNumber: "000123456789", RoutingNumber: "021000021",
			CurrentBalanceCents: 900000, PrincipalBalanceCents: 100000, AccruedInterestCents: 30000,
			OutstandingFeesCents: 5000, ExpectedPaymentCents: 150000, NextPaymentDue: nextDue,
		},
		{
			LoanID: "loan-2", LoanNumber: "LN-555000", BorrowerName: "Tunde Bello",
			BorrowerEmail: "tunde@example.com", AccountNumber: "99887766", RoutingNumber: "111000025",
			ExpectedPaymentCents: 152000,
		},
		{
			LoanID: "loan-3", LoanNumber: "LN-777000", BorrowerName: "Grace Hopper",
			ExpectedPaymentCents: 500000, RoutingNumber: "111000025",
		},
	}
	for _, l := range loans {
		require.NoError(t, s.Upsert(context.Background(), l))
	}
}

func loanIDs(loans []domain.LoanSummary) []string {
	var ids []string
	for _, l := range loans {
		ids = append(ids, l.LoanID)
	}
	return ids
}

func TestFindLoan_ByIDOrNumber(t *testing.T) {
	s := openTestStore(t)
	seedLoans(t, s)
	ctx := context.Background()

	byNumber, err := s.FindLoan(ctx, " LN-100200 ")
	require.NoError(t, err)
	assert.Equal(t, "loan-1", byNumber.LoanID)
	assert.Equal(t, int64(30000), byNumber.AccruedInterestCents)
	assert.True(t, nextDue.Equal(byNumber.NextPaymentDue))

	byID, err := s.FindLoan(ctx, "loan-2")
	require.NoError(t, err)
	assert.Equal(t, "Tunde Bello", byID.BorrowerName)
	assert.True(t, byID.NextPaymentDue.IsZero())

	_, err = s.FindLoan(ctx, "LN-000000")
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestUpsert_ReplacesExistingLoan(t *testing.T) {
	s := openTestStore(t)
	seedLoans(t, s)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, domain.LoanSummary{
		LoanID: "loan-2", LoanNumber: "LN-555000", BorrowerName: "Tunde Bello", ExpectedPaymentCents: 160000,
	}))
	loan, err := s.FindLoan(ctx, "LN-555000")
	require.NoError(t, err)
	assert.Equal(t, int64(160000), loan.ExpectedPaymentCents)
	assert.Empty(t, loan.AccountNumber)

	assert.Error(t, s.Upsert(ctx, domain.LoanSummary{BorrowerName: "nobody"}))
}

func TestSearchCandidates_AmountWithinTolerance(t *testing.T) {
	s := openTestStore(t)
	seedLoans(t, s)

	loans, err := s.SearchCandidates(context.Background(), 150000, domain.IdentitySignals{})
	require.NoError(t, err)
	assert.Equal(t, []string{"loan-1", "loan-2"}, loanIDs(loans))
}

func TestSearchCandidates_IdentitySignals(t *testing.T) {
	s := openTestStore(t)
	seedLoans(t, s)
	ctx := context.Background()

	tests := []struct {
		name     string
		identity domain.IdentitySignals
		want     []string
	}{
		{"name token", domain.IdentitySignals{Name: "GRACE h."}, []string{"loan-3"}},
		{"email ignores case", domain.IdentitySignals{Email: "Ada@Example.com"}, []string{"loan-1"}},
		{"phone without country code", domain.IdentitySignals{Phone: "555-010-2030"}, []string{"loan-1"}},
		{"account ending", domain.IdentitySignals{AccountNumber: "xxxx7766"}, []string{"loan-2"}},
		{"routing number", domain.IdentitySignals{RoutingNumber: "111-000-025"}, []string{"loan-2", "loan-3"}},
		{"short phone is ignored", domain.IdentitySignals{Phone: "2030"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// an amount far from every expected payment
			loans, err := s.SearchCandidates(ctx, 1, tt.identity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, loanIDs(loans))
		})
	}
}

func TestSearchCandidates_RespectsLimit(t *testing.T) {
	s := openTestStore(t, WithMaxResults(1))
	seedLoans(t, s)

	loans, err := s.SearchCandidates(context.Background(), 150000, domain.IdentitySignals{})
	require.NoError(t, err)
	assert.Equal(t, []string{"loan-1"}, loanIDs(loans))
}

func TestSearchCandidates_NoSignals(t *testing.T) {
	s := openTestStore(t)
	seedLoans(t, s)

	loans, err := s.SearchCandidates(context.Background(), 0, domain.IdentitySignals{Name: "a"})
	require.NoError(t, err)
	assert.Empty(t, loans)
}

// ============================================================================
// FAILURE PATHS
// ============================================================================

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestFindLoan_QueryErrorIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("disk I/O error")
	mock.ExpectQuery("SELECT (.+) FROM loans").WithArgs("LN-1", "LN-1", "LN-1").WillReturnError(boom)

	_, err := s.FindLoan(context.Background(), "LN-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrLoanNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLoan_CorruptDueDate(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"loan_id", "loan_number", "borrower_name", "borrower_email", "borrower_phone",
		"account_number", "routing_number", "current_balance_cents", "principal_balance_cents",
		"accrued_interest_cents", "outstanding_fees_cents", "expected_payment_cents", "next_payment_due",
	}).AddRow("loan-1", "LN-1", "Ada Obi", "", "", "", "", 0, 0, 0, 0, 150000, "next tuesday")
	mock.ExpectQuery("SELECT (.+) FROM loans").WillReturnRows(rows)

	_, err := s.FindLoan(context.Background(), "LN-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "next_payment_due")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCandidates_RowErrorIsReturned(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"loan_id", "loan_number", "borrower_name", "borrower_email", "borrower_phone",
		"account_number", "routing_number", "current_balance_cents", "principal_balance_cents",
		"accrued_interest_cents", "outstanding_fees_cents", "expected_payment_cents", "next_payment_due",
	}).
		AddRow("loan-1", "LN-1", "Ada Obi", "", "", "", "", 0, 0, 0, 0, 150000, "").
		RowError(0, errors.New("connection reset"))
	mock.ExpectQuery("SELECT (.+) FROM loans WHERE").WillReturnRows(rows)

	_, err := s.SearchCandidates(context.Background(), 150000, domain.IdentitySignals{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
