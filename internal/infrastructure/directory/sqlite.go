package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

var _ application.LoanDirectory = (*Store)(nil)

const (
	defaultTolerance  = 0.05
	defaultMaxResults = 50
)

// Store is a SQLite read model of the servicing platform's loans. It answers
// loan lookups for batch validation and candidate searches for suspense
// matching.
type Store struct {
	db         *sql.DB
	tolerance  float64
	maxResults int
}

type Option func(*Store)

// WithAmountTolerance widens the amount pre-filter to expected*(1±tolerance).
func WithAmountTolerance(t float64) Option {
	return func(s *Store) {
		if t >= 0 {
			s.tolerance = t
		}
	}
}

func WithMaxResults(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// Open opens (or creates) the directory database at path and makes sure the
// schema exists. Pass ":memory:" for a throwaway database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("directory %q: %w", p, err)
		}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create directory tables: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an existing connection. The schema is assumed to exist.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, tolerance: defaultTolerance, maxResults: defaultMaxResults}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS loans (
			loan_id TEXT PRIMARY KEY,
			loan_number TEXT NOT NULL DEFAULT '',
			borrower_name TEXT NOT NULL,
			borrower_email TEXT NOT NULL DEFAULT '',
			borrower_phone TEXT NOT NULL DEFAULT '',
			phone_tail TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			account_last4 TEXT NOT NULL DEFAULT '',
			routing_number TEXT NOT NULL DEFAULT '',
			current_balance_cents INTEGER NOT NULL DEFAULT 0,
			principal_balance_cents INTEGER NOT NULL DEFAULT 0,
			accrued_interest_cents INTEGER NOT NULL DEFAULT 0,
			outstanding_fees_cents INTEGER NOT NULL DEFAULT 0,
			expected_payment_cents INTEGER NOT NULL DEFAULT 0,
			next_payment_due TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_loan_number ON loans(loan_number)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_expected_payment ON loans(expected_payment_cents)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_borrower_name ON loans(lower(borrower_name))`,
		`CREATE INDEX IF NOT EXISTS idx_loans_account_last4 ON loans(account_last4)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

const loanColumns = `loan_id, loan_number, borrower_name, borrower_email, borrower_phone,
	account_number, routing_number, current_balance_cents, principal_balance_cents,
	accrued_interest_cents, outstanding_fees_cents, expected_payment_cents, next_payment_due`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Upsert inserts or replaces a loan.
func (s *Store) Upsert(ctx context.Context, loan domain.LoanSummary) error {
	return upsert(ctx, s.db, loan)
}

func upsert(ctx context.Context, db execer, loan domain.LoanSummary) error {
	if loan.LoanID == "" {
		return domain.NewMissingRequiredFieldError("loan id")
	}
	due := ""
	if !loan.NextPaymentDue.IsZero() {
		due = loan.NextPaymentDue.UTC().Format(time.RFC3339)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO loans (`+loanColumns+`, phone_tail, account_last4)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(loan_id) DO UPDATE SET
			loan_number = excluded.loan_number,
			borrower_name = excluded.borrower_name,
			borrower_email = excluded.borrower_email,
			borrower_phone = excluded.borrower_phone,
			account_number = excluded.account_number,
			routing_number = excluded.routing_number,
			current_balance_cents = excluded.current_balance_cents,
			principal_balance_cents = excluded.principal_balance_cents,
			accrued_interest_cents = excluded.accrued_interest_cents,
			outstanding_fees_cents = excluded.outstanding_fees_cents,
			expected_payment_cents = excluded.expected_payment_cents,
			next_payment_due = excluded.next_payment_due,
			phone_tail = excluded.phone_tail,
			account_last4 = excluded.account_last4
	`,
		loan.LoanID, loan.LoanNumber, loan.BorrowerName, loan.BorrowerEmail, loan.BorrowerPhone,
		loan.AccountNumber, loan.RoutingNumber, loan.CurrentBalanceCents, loan.PrincipalBalanceCents,
		loan.AccruedInterestCents, loan.OutstandingFeesCents, loan.ExpectedPaymentCents, due,
		tail(loan.BorrowerPhone, 7), tail(loan.AccountNumber, 4),
	)
	if err != nil {
		return fmt.Errorf("upsert loan %s: %w", loan.LoanID, err)
	}
	return nil
}

// FindLoan resolves a loan by id or by its human-facing loan number.
func (s *Store) FindLoan(ctx context.Context, loanRef string) (*domain.LoanSummary, error) {
	ref := strings.TrimSpace(loanRef)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE loan_id = ? OR loan_number = ?
		ORDER BY loan_id = ? DESC
		LIMIT 1
	`, ref, ref, ref)

	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.ErrLoanNotFound, ref)
		}
		return nil, fmt.Errorf("find loan %s: %w", ref, err)
	}
	return &loan, nil
}

// SearchCandidates returns loans that share at least one signal with the
// payment. Scoring happens in the caller; this is only a coarse pre-filter.
func (s *Store) SearchCandidates(ctx context.Context, amountCents int64, id domain.IdentitySignals) ([]domain.LoanSummary, error) {
	var (
		where []string
		args  []any
	)
	if amountCents > 0 {
		// expected*(1-t) <= amount <= expected*(1+t)
		where = append(where, `(expected_payment_cents > 0 AND ABS(? - expected_payment_cents) <= expected_payment_cents * ?)`)
		args = append(args, amountCents, s.tolerance)
	}
	for _, token := range nameTokens(id.Name) {
		where = append(where, `instr(lower(borrower_name), ?) > 0`)
		args = append(args, token)
	}
	if email := strings.TrimSpace(id.Email); email != "" {
		where = append(where, `lower(borrower_email) = lower(?)`)
		args = append(args, email)
	}
	if t := tail(id.Phone, 7); len(t) == 7 {
		where = append(where, `phone_tail = ?`)
		args = append(args, t)
	}
	if t := tail(id.AccountNumber, 4); len(t) == 4 {
		where = append(where, `account_last4 = ?`)
		args = append(args, t)
	}
	if r := digits(id.RoutingNumber); r != "" {
		where = append(where, `routing_number = ?`)
		args = append(args, r)
	}
	if len(where) == 0 {
		return nil, nil
	}

	query := `SELECT ` + loanColumns + ` FROM loans WHERE ` + strings.Join(where, " OR ") +
		` ORDER BY loan_id LIMIT ?`
	args = append(args, s.maxResults)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	defer rows.Close()

	var loans []domain.LoanSummary
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return loans, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner) (domain.LoanSummary, error) {
	var (
		l   domain.LoanSummary
		due string
	)
	err := row.Scan(
		&l.LoanID, &l.LoanNumber, &l.BorrowerName, &l.BorrowerEmail, &l.BorrowerPhone,
		&l.AccountNumber, &l.RoutingNumber, &l.CurrentBalanceCents, &l.PrincipalBalanceCents,
		&l.AccruedInterestCents, &l.OutstandingFeesCents, &l.ExpectedPaymentCents, &due,
	)
	if err != nil {
		return l, err
	}
	if due != "" {
		t, err := time.Parse(time.RFC3339, due)
		if err != nil {
			return l, fmt.Errorf("loan %s next_payment_due %q: %w", l.LoanID, due, err)
		}
		l.NextPaymentDue = t
	}
	return l, nil
}

func nameTokens(name string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(name)) {
		f = strings.Trim(f, ".,'-")
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func tail(s string, n int) string {
	d := digits(s)
	if len(d) < n {
		return d
	}
	return d[len(d)-n:]
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
