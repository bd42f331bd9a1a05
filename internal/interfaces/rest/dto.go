package rest

import (
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// Account numbers never leave the service in full.
func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return "****" + number[len(number)-4:]
}

type Attempt struct {
	ID                string     `json:"id"`
	LoanID            string     `json:"loan_id"`
	OriginalPaymentID string     `json:"original_payment_id,omitempty"`
	BorrowerName      string     `json:"borrower_name"`
	AmountCents       int64      `json:"amount_cents"`
	Method            string     `json:"method"`
	Account           string     `json:"account,omitempty"`
	AttemptNumber     int        `json:"attempt_number"`
	MaxRetries        int        `json:"max_retries"`
	Status            string     `json:"status"`
	PolicyID          string     `json:"policy_id,omitempty"`
	ScheduledFor      time.Time  `json:"scheduled_for"`
	NextRetryAt       *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	LastFailureReason string     `json:"last_failure_reason,omitempty"`
	LastFailureCode   string     `json:"last_failure_code,omitempty"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	BorrowerNotified  bool       `json:"borrower_notified"`
	Escalated         bool       `json:"escalated"`
	PolicyAnomaly     bool       `json:"policy_anomaly"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func ToAPIAttempt(a *domain.PaymentAttempt) *Attempt {
	if a == nil {
		return nil
	}
	out := &Attempt{
		ID:                a.ID,
		LoanID:            a.LoanID,
		OriginalPaymentID: a.OriginalPaymentID,
		BorrowerName:      a.BorrowerName,
		AmountCents:       a.AmountCents,
		Method:            string(a.Method),
		Account:           maskAccount(a.Account.AccountNumber),
		AttemptNumber:     a.AttemptNumber,
		MaxRetries:        a.MaxRetries,
		Status:            string(a.Status),
		PolicyID:          a.PolicyID,
		ScheduledFor:      a.ScheduledFor,
		NextRetryAt:       a.NextRetryAt,
		ProcessedAt:       a.ProcessedAt,
		BorrowerNotified:  a.BorrowerNotified,
		Escalated:         a.Escalated,
		PolicyAnomaly:     a.PolicyAnomaly,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	if a.LastFailureReason != nil {
		out.LastFailureReason = string(*a.LastFailureReason)
	}
	if a.LastFailureCode != nil {
		out.LastFailureCode = *a.LastFailureCode
	}
	if a.TransactionID != nil {
		out.TransactionID = *a.TransactionID
	}
	return out
}

func ToAPIAttempts(attempts []*domain.PaymentAttempt) []*Attempt {
	out := make([]*Attempt, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, ToAPIAttempt(a))
	}
	return out
}

type FailureEntry struct {
	ID                string        `json:"id"`
	AttemptID         string        `json:"attempt_id,omitempty"`
	OriginalPaymentID string        `json:"original_payment_id,omitempty"`
	LoanID            string        `json:"loan_id"`
	BorrowerName      string        `json:"borrower_name"`
	AmountCents       int64         `json:"amount_cents"`
	Method            string        `json:"method"`
	Account           string        `json:"account,omitempty"`
	FailureReason     string        `json:"failure_reason"`
	FailureCode       string        `json:"failure_code,omitempty"`
	FailedAt          time.Time     `json:"failed_at"`
	RetryCount        int           `json:"retry_count"`
	NextRetryAt       *time.Time    `json:"next_retry_at,omitempty"`
	Status            string        `json:"status"`
	Escalated         bool          `json:"escalated"`
	LastContactAt     *time.Time    `json:"last_contact_at,omitempty"`
	ResolvedBy        string        `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time    `json:"resolved_at,omitempty"`
	Notes             []domain.Note `json:"notes"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func ToAPIFailureEntry(e *domain.FailureQueueEntry) *FailureEntry {
	if e == nil {
		return nil
	}
	notes := e.Notes
	if notes == nil {
		notes = []domain.Note{}
	}
	return &FailureEntry{
		ID:                e.ID,
		AttemptID:         e.AttemptID,
		OriginalPaymentID: e.OriginalPaymentID,
		LoanID:            e.LoanID,
		BorrowerName:      e.BorrowerName,
		AmountCents:       e.AmountCents,
		Method:            string(e.Method),
		Account:           maskAccount(e.Account.AccountNumber),
		FailureReason:     string(e.FailureReason),
		FailureCode:       e.FailureCode,
		FailedAt:          e.FailedAt,
		RetryCount:        e.RetryCount,
		NextRetryAt:       e.NextRetryAt,
		Status:            string(e.Status),
		Escalated:         e.Escalated,
		LastContactAt:     e.LastContactAt,
		ResolvedBy:        e.ResolvedBy,
		ResolvedAt:        e.ResolvedAt,
		Notes:             notes,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func ToAPIFailureEntries(entries []*domain.FailureQueueEntry) []*FailureEntry {
	out := make([]*FailureEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToAPIFailureEntry(e))
	}
	return out
}

type Registration struct {
	Attempt      *Attempt      `json:"attempt,omitempty"`
	FailureEntry *FailureEntry `json:"failure_entry,omitempty"`
}

func ToAPIRegistration(r *services.Registration) Registration {
	return Registration{
		Attempt:      ToAPIAttempt(r.Attempt),
		FailureEntry: ToAPIFailureEntry(r.Entry),
	}
}

type ProcessResult struct {
	Attempt      *Attempt      `json:"attempt"`
	Successor    *Attempt      `json:"successor,omitempty"`
	FailureEntry *FailureEntry `json:"failure_entry,omitempty"`
}

func ToAPIProcessResult(r *services.ProcessResult) ProcessResult {
	return ProcessResult{
		Attempt:      ToAPIAttempt(r.Attempt),
		Successor:    ToAPIAttempt(r.Successor),
		FailureEntry: ToAPIFailureEntry(r.Entry),
	}
}

type SuspensePayment struct {
	ID              string                `json:"id"`
	AmountCents     int64                 `json:"amount_cents"`
	ReceivedAt      time.Time             `json:"received_at"`
	AgeDays         int                   `json:"age_days"`
	Method          string                `json:"method,omitempty"`
	ReferenceNumber string                `json:"reference_number,omitempty"`
	Account         string                `json:"account,omitempty"`
	CustomerName    string                `json:"customer_name,omitempty"`
	CustomerEmail   string                `json:"customer_email,omitempty"`
	CustomerPhone   string                `json:"customer_phone,omitempty"`
	Source          string                `json:"source,omitempty"`
	Status          string                `json:"status"`
	ReasonCode      string                `json:"reason_code,omitempty"`
	AssignedTo      string                `json:"assigned_to,omitempty"`
	BestConfidence  int                   `json:"best_confidence"`
	Matches         []domain.LoanMatch    `json:"matches"`
	Applied         *domain.AppliedRecord `json:"applied,omitempty"`
	Notes           []domain.Note         `json:"notes"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func ToAPISuspensePayment(p *domain.SuspensePayment, now time.Time) *SuspensePayment {
	matches := p.Matches
	if matches == nil {
		matches = []domain.LoanMatch{}
	}
	notes := p.Notes
	if notes == nil {
		notes = []domain.Note{}
	}
	return &SuspensePayment{
		ID:              p.ID,
		AmountCents:     p.AmountCents,
		ReceivedAt:      p.ReceivedAt,
		AgeDays:         p.AgeDays(now),
		Method:          string(p.Method),
		ReferenceNumber: p.ReferenceNumber,
		Account:         maskAccount(p.AccountNumber),
		CustomerName:    p.CustomerName,
		CustomerEmail:   p.CustomerEmail,
		CustomerPhone:   p.CustomerPhone,
		Source:          p.Source,
		Status:          string(p.Status),
		ReasonCode:      p.ReasonCode,
		AssignedTo:      p.AssignedTo,
		BestConfidence:  p.BestConfidence(),
		Matches:         matches,
		Applied:         p.Applied,
		Notes:           notes,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func ToAPISuspensePayments(payments []*domain.SuspensePayment, now time.Time) []*SuspensePayment {
	out := make([]*SuspensePayment, 0, len(payments))
	for _, p := range payments {
		out = append(out, ToAPISuspensePayment(p, now))
	}
	return out
}

type BatchRecord struct {
	ID          string               `json:"id"`
	RowNumber   int                  `json:"row_number"`
	LoanRef     string               `json:"loan_ref"`
	AmountCents int64                `json:"amount_cents"`
	PaymentDate *time.Time           `json:"payment_date,omitempty"`
	Method      string               `json:"method,omitempty"`
	Status      string               `json:"status"`
	Errors      []string             `json:"errors,omitempty"`
	Result      *domain.RecordResult `json:"result,omitempty"`
}

type Batch struct {
	ID                 string                   `json:"id"`
	FileName           string                   `json:"file_name"`
	UploadedAt         time.Time                `json:"uploaded_at"`
	Status             string                   `json:"status"`
	RecordCount        int                      `json:"record_count"`
	DeclaredTotalCents int64                    `json:"declared_total_cents"`
	ValidRecords       int                      `json:"valid_records"`
	InvalidRecords     int                      `json:"invalid_records"`
	ProcessedRecords   int                      `json:"processed_records"`
	Summary            domain.ValidationSummary `json:"validation_summary"`
	Stats              *domain.BatchStats       `json:"stats,omitempty"`
	StartedAt          *time.Time               `json:"started_at,omitempty"`
	CompletedAt        *time.Time               `json:"completed_at,omitempty"`
	UpdatedAt          time.Time                `json:"updated_at"`
	Records            []BatchRecord            `json:"records,omitempty"`
}

// ToAPIBatch renders a batch. Records are included only when withRecords is set.
func ToAPIBatch(b *domain.PaymentBatch, withRecords bool) *Batch {
	out := &Batch{
		ID:                 b.ID,
		FileName:           b.FileName,
		UploadedAt:         b.UploadedAt,
		Status:             string(b.Status),
		RecordCount:        b.RecordCount,
		DeclaredTotalCents: b.DeclaredTotalCents,
		ValidRecords:       b.ValidRecords,
		InvalidRecords:     b.InvalidRecords,
		ProcessedRecords:   b.ProcessedRecords,
		Summary:            b.Summary,
		Stats:              b.Stats,
		StartedAt:          b.StartedAt,
		CompletedAt:        b.CompletedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if !withRecords {
		return out
	}
	out.Records = make([]BatchRecord, 0, len(b.Records))
	for _, r := range b.Records {
		rec := BatchRecord{
			ID:          r.ID,
			RowNumber:   r.RowNumber,
			LoanRef:     r.LoanRef,
			AmountCents: r.AmountCents,
			Method:      string(r.Method),
			Status:      string(r.Status),
			Errors:      r.Errors,
			Result:      r.Result,
		}
		if !r.PaymentDate.IsZero() {
			d := r.PaymentDate
			rec.PaymentDate = &d
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

func ToAPIBatches(batches []*domain.PaymentBatch) []*Batch {
	out := make([]*Batch, 0, len(batches))
	for _, b := range batches {
		out = append(out, ToAPIBatch(b, false))
	}
	return out
}
