package postgres

import (
	"time"
)

// Row models mirror the table columns. Nested values are stored as JSONB and
// carried here as raw bytes.

type PolicyModel struct {
	ID                      string
	Name                    string
	Enabled                 bool
	IntervalsNs             []int64
	MaxAttempts             int
	BackoffMultiplier       float64
	StopOnSuccess           bool
	EscalateAfterMaxRetries bool
	PaymentMethods          []string
	FailureReasons          []string
	InitialDelayNs          int64
	Priority                int
	UpdatedAt               time.Time
}

const policyColumns = `id, name, enabled, intervals_ns, max_attempts, backoff_multiplier,
	stop_on_success, escalate_after_max_retries, payment_methods, failure_reasons,
	initial_delay_ns, priority, updated_at`

func (m *PolicyModel) fields() []any {
	return []any{
		&m.ID, &m.Name, &m.Enabled, &m.IntervalsNs, &m.MaxAttempts, &m.BackoffMultiplier,
		&m.StopOnSuccess, &m.EscalateAfterMaxRetries, &m.PaymentMethods, &m.FailureReasons,
		&m.InitialDelayNs, &m.Priority, &m.UpdatedAt,
	}
}

type AttemptModel struct {
	ID                string
	LoanID            string
	OriginalPaymentID string
	BorrowerName      string
	AmountCents       int64
	Method            string
	Account           []byte
	AttemptNumber     int
	MaxRetries        int
	Status            string
	PolicyID          string
	ScheduledFor      time.Time
	ProcessedAt       *time.Time
	NextRetryAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastFailureReason *string
	LastFailureCode   *string
	TransactionID     *string
	BorrowerNotified  bool
	Escalated         bool
	PolicyAnomaly     bool
	Metadata          []byte
}

const attemptColumns = `id, loan_id, original_payment_id, borrower_name, amount_cents, method, account,
	attempt_number, max_retries, status, policy_id, scheduled_for, processed_at, next_retry_at,
	created_at, updated_at, last_failure_reason, last_failure_code, transaction_id,
	borrower_notified, escalated, policy_anomaly, metadata`

func (m *AttemptModel) fields() []any {
	return []any{
		&m.ID, &m.LoanID, &m.OriginalPaymentID, &m.BorrowerName, &m.AmountCents, &m.Method, &m.Account,
		&m.AttemptNumber, &m.MaxRetries, &m.Status, &m.PolicyID, &m.ScheduledFor, &m.ProcessedAt, &m.NextRetryAt,
		&m.CreatedAt, &m.UpdatedAt, &m.LastFailureReason, &m.LastFailureCode, &m.TransactionID,
		&m.BorrowerNotified, &m.Escalated, &m.PolicyAnomaly, &m.Metadata,
	}
}

type FailureEntryModel struct {
	ID                string
	AttemptID         string
	OriginalPaymentID string
	LoanID            string
	BorrowerName      string
	AmountCents       int64
	Method            string
	Account           []byte
	FailureReason     string
	FailureCode       string
	FailedAt          time.Time
	RetryCount        int
	NextRetryAt       *time.Time
	Status            string
	Escalated         bool
	LastContactAt     *time.Time
	ResolvedBy        string
	ResolvedAt        *time.Time
	Notes             []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const failureColumns = `id, attempt_id, original_payment_id, loan_id, borrower_name, amount_cents, method,
	account, failure_reason, failure_code, failed_at, retry_count, next_retry_at, status, escalated,
	last_contact_at, resolved_by, resolved_at, notes, created_at, updated_at`

func (m *FailureEntryModel) fields() []any {
	return []any{
		&m.ID, &m.AttemptID, &m.OriginalPaymentID, &m.LoanID, &m.BorrowerName, &m.AmountCents, &m.Method,
		&m.Account, &m.FailureReason, &m.FailureCode, &m.FailedAt, &m.RetryCount, &m.NextRetryAt, &m.Status, &m.Escalated,
		&m.LastContactAt, &m.ResolvedBy, &m.ResolvedAt, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
	}
}

type SuspenseModel struct {
	ID              string
	AmountCents     int64
	ReceivedAt      time.Time
	Method          string
	ReferenceNumber string
	AccountNumber   string
	RoutingNumber   string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Source          string
	Status          string
	ReasonCode      string
	Notes           []byte
	AssignedTo      string
	Matches         []byte
	Applied         []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const suspenseColumns = `id, amount_cents, received_at, method, reference_number, account_number,
	routing_number, customer_name, customer_email, customer_phone, source, status, reason_code,
	notes, assigned_to, matches, applied, created_at, updated_at`

func (m *SuspenseModel) fields() []any {
	return []any{
		&m.ID, &m.AmountCents, &m.ReceivedAt, &m.Method, &m.ReferenceNumber, &m.AccountNumber,
		&m.RoutingNumber, &m.CustomerName, &m.CustomerEmail, &m.CustomerPhone, &m.Source, &m.Status, &m.ReasonCode,
		&m.Notes, &m.AssignedTo, &m.Matches, &m.Applied, &m.CreatedAt, &m.UpdatedAt,
	}
}

type BatchModel struct {
	ID                 string
	FileName           string
	UploadedAt         time.Time
	RecordCount        int
	DeclaredTotalCents int64
	Status             string
	ValidRecords       int
	InvalidRecords     int
	ProcessedRecords   int
	Summary            []byte
	Stats              []byte
	StartedAt          *time.Time
	CompletedAt        *time.Time
	UpdatedAt          time.Time
}

const batchColumns = `id, file_name, uploaded_at, record_count, declared_total_cents, status,
	valid_records, invalid_records, processed_records, summary, stats, started_at, completed_at, updated_at`

func (m *BatchModel) fields() []any {
	return []any{
		&m.ID, &m.FileName, &m.UploadedAt, &m.RecordCount, &m.DeclaredTotalCents, &m.Status,
		&m.ValidRecords, &m.InvalidRecords, &m.ProcessedRecords, &m.Summary, &m.Stats, &m.StartedAt, &m.CompletedAt, &m.UpdatedAt,
	}
}

type RecordModel struct {
	ID            string
	RowNumber     int
	LoanRef       string
	AmountCents   int64
	PaymentDate   *time.Time
	Method        string
	AccountNumber string
	RoutingNumber string
	Reference     string
	Fields        []byte
	Status        string
	Errors        []byte
	Result        []byte
	LatencyNanos  int64
}

const recordColumns = `id, row_number, loan_ref, amount_cents, payment_date, method, account_number,
	routing_number, reference, fields, status, errors, result, latency_ns`

func (m *RecordModel) fields() []any {
	return []any{
		&m.ID, &m.RowNumber, &m.LoanRef, &m.AmountCents, &m.PaymentDate, &m.Method, &m.AccountNumber,
		&m.RoutingNumber, &m.Reference, &m.Fields, &m.Status, &m.Errors, &m.Result, &m.LatencyNanos,
	}
}
