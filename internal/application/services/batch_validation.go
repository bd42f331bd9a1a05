package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// DefaultMaxRecordAmountCents is the sanity ceiling for a single batch row ($1,000,000).
const DefaultMaxRecordAmountCents int64 = 100_000_000

const (
	minAccountDigits = 4
	routingDigits    = 9
)

var loanRefPattern = regexp.MustCompile(`^[A-Za-z0-9-]{6,20}$`)

var paymentDateLayouts = []string{"2006-01-02", "01/02/2006", time.RFC3339}

// ValidationRules configure the batch validation pipeline.
type ValidationRules struct {
	RequiredFields   []string
	MaxAmountCents   int64
	RejectDuplicates bool
}

func DefaultValidationRules() ValidationRules {
	return ValidationRules{
		RequiredFields: []string{FieldLoanRef, FieldAmount, FieldPaymentDate, FieldPaymentMethod},
		MaxAmountCents: DefaultMaxRecordAmountCents,
	}
}

type errorCategory int

const (
	categoryMissingField errorCategory = iota
	categoryLoanRef
	categoryAmount
	categoryDate
	categoryMethod
	categoryBankDetails
	categoryLoanNotFound
	categoryDuplicate
)

// recordCheck collects one record's errors and the categories they fall in.
type recordCheck struct {
	errs       []string
	categories map[errorCategory]bool
}

func (c *recordCheck) add(cat errorCategory, format string, args ...any) {
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
	c.categories[cat] = true
}

// BatchValidator validates every record of a batch independently. A bad row
// never stops the others from being checked.
type BatchValidator struct {
	rules     ValidationRules
	directory application.LoanDirectory
	logger    *slog.Logger
	now       func() time.Time
}

// NewBatchValidator builds a validator. directory may be nil, in which case
// loan existence is not checked.
func NewBatchValidator(rules ValidationRules, directory application.LoanDirectory, logger *slog.Logger) *BatchValidator {
	if rules.MaxAmountCents <= 0 {
		rules.MaxAmountCents = DefaultMaxRecordAmountCents
	}
	if len(rules.RequiredFields) == 0 {
		rules.RequiredFields = DefaultValidationRules().RequiredFields
	}
	return &BatchValidator{
		rules:     rules,
		directory: directory,
		logger:    logger,
		now:       time.Now,
	}
}

func (v *BatchValidator) WithClock(now func() time.Time) *BatchValidator {
	v.now = now
	return v
}

// Validate settles every record as VALIDATED or REJECTED, fills the summary
// and moves the batch to VALIDATED.
func (v *BatchValidator) Validate(ctx context.Context, batch *domain.PaymentBatch) error {
	now := v.now()
	checks := make([]*recordCheck, len(batch.Records))
	batch.DeclaredTotalCents = 0

	for i, r := range batch.Records {
		if err := r.StartValidation(); err != nil {
			return err
		}
		checks[i] = v.checkRecord(ctx, r, now)
		batch.DeclaredTotalCents += r.AmountCents
	}

	duplicates := v.markDuplicates(batch.Records, checks)

	var summary domain.ValidationSummary
	summary.Duplicates = duplicates
	for i, r := range batch.Records {
		c := checks[i]
		if err := r.FinishValidation(c.errs); err != nil {
			return err
		}
		for cat := range c.categories {
			switch cat {
			case categoryMissingField:
				summary.MissingFields++
			case categoryLoanRef:
				summary.InvalidLoanRefs++
			case categoryAmount:
				summary.InvalidAmounts++
			case categoryDate:
				summary.InvalidDates++
			case categoryMethod:
				summary.InvalidPaymentMethods++
			case categoryBankDetails:
				summary.InvalidBankDetails++
			case categoryLoanNotFound:
				summary.LoanNotFound++
			}
		}
	}
	batch.Summary = summary

	if err := batch.MarkValidated(now); err != nil {
		return err
	}
	v.logger.Info("batch validated",
		"batch_id", batch.ID,
		"records", batch.RecordCount,
		"valid", batch.ValidRecords,
		"invalid", batch.InvalidRecords,
		"duplicates", summary.Duplicates)
	return nil
}

func (v *BatchValidator) checkRecord(ctx context.Context, r *domain.BatchRecord, now time.Time) *recordCheck {
	c := &recordCheck{categories: make(map[errorCategory]bool)}

	for _, field := range v.rules.RequiredFields {
		if strings.TrimSpace(r.Fields[field]) == "" {
			c.add(categoryMissingField, "missing required field: %s", field)
		}
	}

	refOK := false
	if r.LoanRef != "" {
		if loanRefPattern.MatchString(r.LoanRef) {
			refOK = true
		} else {
			c.add(categoryLoanRef, "invalid loan reference format: %s", r.LoanRef)
		}
	}

	if raw := r.Fields[FieldAmount]; raw != "" {
		amount, err := ParseAmountCents(raw)
		switch {
		case err != nil:
			c.add(categoryAmount, "invalid amount: %s", raw)
		case amount <= 0:
			c.add(categoryAmount, "amount must be positive")
		case amount > v.rules.MaxAmountCents:
			c.add(categoryAmount, "amount exceeds maximum of %s", domain.FormatCents(v.rules.MaxAmountCents))
		default:
			r.AmountCents = amount
		}
	}

	if raw := r.Fields[FieldPaymentDate]; raw != "" {
		date, err := parsePaymentDate(raw)
		switch {
		case err != nil:
			c.add(categoryDate, "invalid payment date: %s", raw)
		case dateOnly(date).After(dateOnly(now)):
			c.add(categoryDate, "payment date is in the future: %s", raw)
		default:
			r.PaymentDate = date
		}
	}

	if raw := r.Fields[FieldPaymentMethod]; raw != "" {
		method, err := domain.ParsePaymentMethod(raw)
		if err != nil {
			c.add(categoryMethod, "invalid payment method: %s", raw)
		} else {
			r.Method = method
			if method.RequiresBankDetails() {
				v.checkBankDetails(r, c)
			}
		}
	}

	if refOK && v.directory != nil {
		if _, err := v.directory.FindLoan(ctx, r.LoanRef); err != nil {
			if errors.Is(err, domain.ErrLoanNotFound) {
				c.add(categoryLoanNotFound, "loan not found: %s", r.LoanRef)
			} else {
				v.logger.Warn("loan lookup failed during validation", "loan_ref", r.LoanRef, "error", err)
				c.errs = append(c.errs, fmt.Sprintf("loan lookup failed: %v", err))
			}
		}
	}
	return c
}

func (v *BatchValidator) checkBankDetails(r *domain.BatchRecord, c *recordCheck) {
	account := strings.TrimSpace(r.AccountNumber)
	if len(account) < minAccountDigits || !isDigits(account) {
		c.add(categoryBankDetails, "account number must be at least %d digits", minAccountDigits)
	}
	routing := strings.TrimSpace(r.RoutingNumber)
	if len(routing) != routingDigits || !isDigits(routing) {
		c.add(categoryBankDetails, "routing number must be exactly %d digits", routingDigits)
	}
}

// markDuplicates counts repeated loan references. Every occurrence after the
// first counts once; it is rejected only when the rules say so.
func (v *BatchValidator) markDuplicates(records []*domain.BatchRecord, checks []*recordCheck) int {
	seen := make(map[string]int)
	duplicates := 0
	for i, r := range records {
		key := strings.ToUpper(strings.TrimSpace(r.LoanRef))
		if key == "" {
			continue
		}
		seen[key]++
		if seen[key] == 1 {
			continue
		}
		duplicates++
		if v.rules.RejectDuplicates {
			checks[i].add(categoryDuplicate, "duplicate loan reference: %s", r.LoanRef)
		}
	}
	return duplicates
}

// ParseAmountCents parses a dollar amount such as "1500", "1,500.5" or
// "$1500.00" into cents without going through floating point.
func ParseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasFrac && (len(frac) == 0 || len(frac) > 2 || !isDigits(frac))) {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	if dollars > (math.MaxInt64-99)/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	total := dollars*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}

func parsePaymentDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range paymentDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
