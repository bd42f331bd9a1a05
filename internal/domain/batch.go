package domain

import (
	"slices"
	"time"
)

type RecordStatus string

const (
	RecordPending    RecordStatus = "PENDING"
	RecordValidating RecordStatus = "VALIDATING"
	RecordValidated  RecordStatus = "VALIDATED"
	RecordProcessing RecordStatus = "PROCESSING"
	RecordCompleted  RecordStatus = "COMPLETED"
	RecordFailed     RecordStatus = "FAILED"
	RecordRejected   RecordStatus = "REJECTED"
)

type BatchStatus string

const (
	BatchValidating BatchStatus = "VALIDATING"
	BatchValidated  BatchStatus = "VALIDATED"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchPaused     BatchStatus = "PAUSED"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

// BatchRecord is one row of an uploaded payment file.
type BatchRecord struct {
	ID            string
	RowNumber     int
	LoanRef       string
	AmountCents   int64
	PaymentDate   time.Time
	Method        PaymentMethod
	AccountNumber string
	RoutingNumber string
	Reference     string
	Fields        map[string]string
	Status        RecordStatus
	Errors        []string
	Result        *RecordResult
	// Latency is the time the submission took, kept for failed records too.
	Latency time.Duration
}

// RecordResult is what the payment application returned for a completed row.
type RecordResult struct {
	TransactionID         string `json:"transaction_id"`
	AppliedCents          int64  `json:"applied_cents"`
	PrincipalCents        int64  `json:"principal_cents"`
	InterestCents         int64  `json:"interest_cents"`
	FeesCents             int64  `json:"fees_cents"`
	ResultingBalanceCents int64 `json:"resulting_balance_cents"`
}

func (r *BatchRecord) Account() AccountDetails {
	return AccountDetails{AccountNumber: r.AccountNumber, RoutingNumber: r.RoutingNumber, Reference: r.Reference}
}

func (r *BatchRecord) StartValidation() error {
	return r.transition(RecordValidating)
}

// FinishValidation settles the record as VALIDATED or REJECTED from its errors.
func (r *BatchRecord) FinishValidation(errs []string) error {
	r.Errors = append(r.Errors, errs...)
	if len(r.Errors) == 0 {
		return r.transition(RecordValidated)
	}
	return r.transition(RecordRejected)
}

func (r *BatchRecord) MarkProcessing() error {
	return r.transition(RecordProcessing)
}

func (r *BatchRecord) Complete(result RecordResult) error {
	if err := r.transition(RecordCompleted); err != nil {
		return err
	}
	r.Result = &result
	return nil
}

func (r *BatchRecord) Fail(message string) error {
	if err := r.transition(RecordFailed); err != nil {
		return err
	}
	r.Errors = append(r.Errors, message)
	return nil
}

func (r *BatchRecord) IsFinished() bool {
	return r.Status == RecordCompleted || r.Status == RecordFailed || r.Status == RecordRejected
}

func (r *BatchRecord) transition(target RecordStatus) error {
	var allowed []RecordStatus
	switch r.Status {
	case RecordPending:
		allowed = []RecordStatus{RecordValidating}
	case RecordValidating:
		allowed = []RecordStatus{RecordValidated, RecordRejected}
	case RecordValidated:
		allowed = []RecordStatus{RecordProcessing}
	case RecordProcessing:
		allowed = []RecordStatus{RecordCompleted, RecordFailed}
	}
	if !slices.Contains(allowed, target) {
		return NewInvalidTransitionError("batch record", string(r.Status), string(target))
	}
	r.Status = target
	return nil
}

// ValidationSummary tallies validation errors by category across a batch.
type ValidationSummary struct {
	Duplicates            int `json:"duplicates"`
	InvalidAmounts        int `json:"invalidAmounts"`
	InvalidDates          int `json:"invalidDates"`
	InvalidPaymentMethods int `json:"invalidPaymentMethods"`
	InvalidBankDetails    int `json:"invalidBankDetails"`
	MissingFields         int `json:"missingFields"`
	LoanNotFound          int `json:"loanNotFound"`
	InvalidLoanRefs       int `json:"invalidLoanRefs"`
}

// BatchStats are the aggregates computed once a batch has run.
type BatchStats struct {
	SuccessCount     int           `json:"success_count"`
	FailureCount     int           `json:"failure_count"`
	TotalAmountCents int64         `json:"total_amount_cents"`
	AverageLatency   time.Duration `json:"average_latency"`
	SuccessRate      float64       `json:"success_rate"`
}

// PaymentBatch is an uploaded file of payments and its progress.
type PaymentBatch struct {
	ID                 string
	FileName           string
	UploadedAt         time.Time
	RecordCount        int
	DeclaredTotalCents int64
	Status             BatchStatus
	ValidRecords       int
	InvalidRecords     int
	ProcessedRecords   int
	Records            []*BatchRecord
	Summary            ValidationSummary
	Stats              *BatchStats
	StartedAt          *time.Time
	CompletedAt        *time.Time
	UpdatedAt          time.Time
}

func NewPaymentBatch(id, fileName string, records []*BatchRecord, now time.Time) *PaymentBatch {
	b := &PaymentBatch{
		ID:          id,
		FileName:    fileName,
		UploadedAt:  now,
		RecordCount: len(records),
		Status:      BatchValidating,
		Records:     records,
		UpdatedAt:   now,
	}
	for _, r := range records {
		b.DeclaredTotalCents += r.AmountCents
	}
	return b
}

// Recount refreshes the per-status counters from the records.
func (b *PaymentBatch) Recount() {
	b.ValidRecords, b.InvalidRecords, b.ProcessedRecords = 0, 0, 0
	for _, r := range b.Records {
		switch r.Status {
		case RecordRejected:
			b.InvalidRecords++
		case RecordValidated, RecordProcessing:
			b.ValidRecords++
		case RecordCompleted, RecordFailed:
			b.ValidRecords++
			b.ProcessedRecords++
		}
	}
}

// Pending returns the records still owed a submission, in file order: the
// validated ones and any left PROCESSING by an interrupted run.
func (b *PaymentBatch) Pending() []*BatchRecord {
	var out []*BatchRecord
	for _, r := range b.Records {
		if r.Status == RecordValidated || r.Status == RecordProcessing {
			out = append(out, r)
		}
	}
	return out
}

func (b *PaymentBatch) MarkValidated(now time.Time) error {
	if err := b.transition(BatchValidated); err != nil {
		return err
	}
	b.Recount()
	b.UpdatedAt = now
	return nil
}

func (b *PaymentBatch) Start(now time.Time) error {
	if err := b.transition(BatchProcessing); err != nil {
		return err
	}
	if b.StartedAt == nil {
		b.StartedAt = &now
	}
	b.UpdatedAt = now
	return nil
}

func (b *PaymentBatch) Pause(now time.Time) error {
	if err := b.transition(BatchPaused); err != nil {
		return err
	}
	b.Recount()
	b.UpdatedAt = now
	return nil
}

func (b *PaymentBatch) Cancel(now time.Time) error {
	if err := b.transition(BatchCancelled); err != nil {
		return err
	}
	b.Recount()
	b.UpdatedAt = now
	return nil
}

// Complete marks a fully processed batch and stores its aggregates.
func (b *PaymentBatch) Complete(now time.Time) error {
	if err := b.transition(BatchCompleted); err != nil {
		return err
	}
	b.Recount()
	stats := b.ComputeStats()
	b.Stats = &stats
	b.CompletedAt = &now
	b.UpdatedAt = now
	return nil
}

// ComputeStats aggregates the processed records. AverageLatency covers every
// submitted record, failed ones included. The result does not depend on the
// order records finished in.
func (b *PaymentBatch) ComputeStats() BatchStats {
	var s BatchStats
	var latency time.Duration
	for _, r := range b.Records {
		switch r.Status {
		case RecordCompleted:
			s.SuccessCount++
			latency += r.Latency
			if r.Result != nil {
				s.TotalAmountCents += r.Result.AppliedCents
			}
		case RecordFailed:
			s.FailureCount++
			latency += r.Latency
		}
	}
	if total := s.SuccessCount + s.FailureCount; total > 0 {
		s.AverageLatency = latency / time.Duration(total)
		s.SuccessRate = float64(s.SuccessCount) / float64(total)
	}
	return s
}

func (b *PaymentBatch) IsTerminal() bool {
	return b.Status == BatchCompleted || b.Status == BatchCancelled
}

func (b *PaymentBatch) transition(target BatchStatus) error {
	var allowed []BatchStatus
	switch b.Status {
	case BatchValidating:
		allowed = []BatchStatus{BatchValidated}
	case BatchValidated:
		allowed = []BatchStatus{BatchProcessing, BatchCancelled}
	case BatchProcessing:
		allowed = []BatchStatus{BatchPaused, BatchCompleted, BatchCancelled}
	case BatchPaused:
		allowed = []BatchStatus{BatchProcessing, BatchCancelled}
	}
	if !slices.Contains(allowed, target) {
		return NewInvalidTransitionError("batch", string(b.Status), string(target))
	}
	b.Status = target
	return nil
}
