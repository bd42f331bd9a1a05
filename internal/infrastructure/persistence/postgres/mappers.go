package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

func toJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode column: %w", err)
	}
	return b, nil
}

// fromJSON leaves dst untouched for SQL NULL.
func fromJSON(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	return nil
}

func toPolicyModel(p *domain.RetryPolicy) *PolicyModel {
	m := &PolicyModel{
		ID:                      p.ID,
		Name:                    p.Name,
		Enabled:                 p.Enabled,
		IntervalsNs:             make([]int64, len(p.Intervals)),
		MaxAttempts:             p.MaxAttempts,
		BackoffMultiplier:       p.BackoffMultiplier,
		StopOnSuccess:           p.StopOnSuccess,
		EscalateAfterMaxRetries: p.EscalateAfterMaxRetries,
		PaymentMethods:          make([]string, len(p.PaymentMethods)),
		FailureReasons:          make([]string, len(p.FailureReasons)),
		InitialDelayNs:          int64(p.InitialDelay),
		Priority:                p.Priority,
		UpdatedAt:               p.UpdatedAt,
	}
	for i, d := range p.Intervals {
		m.IntervalsNs[i] = int64(d)
	}
	for i, method := range p.PaymentMethods {
		m.PaymentMethods[i] = string(method)
	}
	for i, r := range p.FailureReasons {
		m.FailureReasons[i] = string(r)
	}
	return m
}

func toPolicy(m PolicyModel) *domain.RetryPolicy {
	p := &domain.RetryPolicy{
		ID:                      m.ID,
		Name:                    m.Name,
		Enabled:                 m.Enabled,
		MaxAttempts:             m.MaxAttempts,
		BackoffMultiplier:       m.BackoffMultiplier,
		StopOnSuccess:           m.StopOnSuccess,
		EscalateAfterMaxRetries: m.EscalateAfterMaxRetries,
		InitialDelay:            time.Duration(m.InitialDelayNs),
		Priority:                m.Priority,
		UpdatedAt:               m.UpdatedAt,
	}
	for _, ns := range m.IntervalsNs {
		p.Intervals = append(p.Intervals, time.Duration(ns))
	}
	for _, s := range m.PaymentMethods {
		p.PaymentMethods = append(p.PaymentMethods, domain.PaymentMethod(s))
	}
	for _, s := range m.FailureReasons {
		p.FailureReasons = append(p.FailureReasons, domain.FailureReason(s))
	}
	return p
}

func toAttemptModel(a *domain.PaymentAttempt) (*AttemptModel, error) {
	account, err := toJSON(a.Account)
	if err != nil {
		return nil, err
	}
	metadata, err := toJSON(a.Metadata)
	if err != nil {
		return nil, err
	}
	var reason *string
	if a.LastFailureReason != nil {
		r := string(*a.LastFailureReason)
		reason = &r
	}
	return &AttemptModel{
		ID:                a.ID,
		LoanID:            a.LoanID,
		OriginalPaymentID: a.OriginalPaymentID,
		BorrowerName:      a.BorrowerName,
		AmountCents:       a.AmountCents,
		Method:            string(a.Method),
		Account:           account,
		AttemptNumber:     a.AttemptNumber,
		MaxRetries:        a.MaxRetries,
		Status:            string(a.Status),
		PolicyID:          a.PolicyID,
		ScheduledFor:      a.ScheduledFor,
		ProcessedAt:       a.ProcessedAt,
		NextRetryAt:       a.NextRetryAt,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		LastFailureReason: reason,
		LastFailureCode:   a.LastFailureCode,
		TransactionID:     a.TransactionID,
		BorrowerNotified:  a.BorrowerNotified,
		Escalated:         a.Escalated,
		PolicyAnomaly:     a.PolicyAnomaly,
		Metadata:          metadata,
	}, nil
}

func toAttempt(m AttemptModel) (*domain.PaymentAttempt, error) {
	a := &domain.PaymentAttempt{
		ID:                m.ID,
		LoanID:            m.LoanID,
		OriginalPaymentID: m.OriginalPaymentID,
		BorrowerName:      m.BorrowerName,
		AmountCents:       m.AmountCents,
		Method:            domain.PaymentMethod(m.Method),
		AttemptNumber:     m.AttemptNumber,
		MaxRetries:        m.MaxRetries,
		Status:            domain.AttemptStatus(m.Status),
		PolicyID:          m.PolicyID,
		ScheduledFor:      m.ScheduledFor,
		ProcessedAt:       m.ProcessedAt,
		NextRetryAt:       m.NextRetryAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		LastFailureCode:   m.LastFailureCode,
		TransactionID:     m.TransactionID,
		BorrowerNotified:  m.BorrowerNotified,
		Escalated:         m.Escalated,
		PolicyAnomaly:     m.PolicyAnomaly,
		Metadata:          map[string]string{},
	}
	if m.LastFailureReason != nil {
		r := domain.FailureReason(*m.LastFailureReason)
		a.LastFailureReason = &r
	}
	if err := fromJSON(m.Account, &a.Account); err != nil {
		return nil, err
	}
	if err := fromJSON(m.Metadata, &a.Metadata); err != nil {
		return nil, err
	}
	if a.Metadata == nil {
		a.Metadata = map[string]string{}
	}
	return a, nil
}

func toFailureEntryModel(e *domain.FailureQueueEntry) (*FailureEntryModel, error) {
	account, err := toJSON(e.Account)
	if err != nil {
		return nil, err
	}
	notes, err := toJSON(e.Notes)
	if err != nil {
		return nil, err
	}
	return &FailureEntryModel{
		ID:                e.ID,
		AttemptID:         e.AttemptID,
		OriginalPaymentID: e.OriginalPaymentID,
		LoanID:            e.LoanID,
		BorrowerName:      e.BorrowerName,
		AmountCents:       e.AmountCents,
		Method:            string(e.Method),
		Account:           account,
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
	}, nil
}

func toFailureEntry(m FailureEntryModel) (*domain.FailureQueueEntry, error) {
	e := &domain.FailureQueueEntry{
		ID:                m.ID,
		AttemptID:         m.AttemptID,
		OriginalPaymentID: m.OriginalPaymentID,
		LoanID:            m.LoanID,
		BorrowerName:      m.BorrowerName,
		AmountCents:       m.AmountCents,
		Method:            domain.PaymentMethod(m.Method),
		FailureReason:     domain.FailureReason(m.FailureReason),
		FailureCode:       m.FailureCode,
		FailedAt:          m.FailedAt,
		RetryCount:        m.RetryCount,
		NextRetryAt:       m.NextRetryAt,
		Status:            domain.FailureStatus(m.Status),
		Escalated:         m.Escalated,
		LastContactAt:     m.LastContactAt,
		ResolvedBy:        m.ResolvedBy,
		ResolvedAt:        m.ResolvedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if err := fromJSON(m.Account, &e.Account); err != nil {
		return nil, err
	}
	if err := fromJSON(m.Notes, &e.Notes); err != nil {
		return nil, err
	}
	return e, nil
}

func toSuspenseModel(p *domain.SuspensePayment) (*SuspenseModel, error) {
	notes, err := toJSON(p.Notes)
	if err != nil {
		return nil, err
	}
	matches, err := toJSON(p.Matches)
	if err != nil {
		return nil, err
	}
	var applied []byte
	if p.Applied != nil {
		if applied, err = toJSON(p.Applied); err != nil {
			return nil, err
		}
	}
	return &SuspenseModel{
		ID:              p.ID,
		AmountCents:     p.AmountCents,
		ReceivedAt:      p.ReceivedAt,
		Method:          string(p.Method),
		ReferenceNumber: p.ReferenceNumber,
		AccountNumber:   p.AccountNumber,
		RoutingNumber:   p.RoutingNumber,
		CustomerName:    p.CustomerName,
		CustomerEmail:   p.CustomerEmail,
		CustomerPhone:   p.CustomerPhone,
		Source:          p.Source,
		Status:          string(p.Status),
		ReasonCode:      p.ReasonCode,
		Notes:           notes,
		AssignedTo:      p.AssignedTo,
		Matches:         matches,
		Applied:         applied,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}, nil
}

func toSuspense(m SuspenseModel) (*domain.SuspensePayment, error) {
	p := &domain.SuspensePayment{
		ID:              m.ID,
		AmountCents:     m.AmountCents,
		ReceivedAt:      m.ReceivedAt,
		Method:          domain.PaymentMethod(m.Method),
		ReferenceNumber: m.ReferenceNumber,
		AccountNumber:   m.AccountNumber,
		RoutingNumber:   m.RoutingNumber,
		CustomerName:    m.CustomerName,
		CustomerEmail:   m.CustomerEmail,
		CustomerPhone:   m.CustomerPhone,
		Source:          m.Source,
		Status:          domain.SuspenseStatus(m.Status),
		ReasonCode:      m.ReasonCode,
		AssignedTo:      m.AssignedTo,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if err := fromJSON(m.Notes, &p.Notes); err != nil {
		return nil, err
	}
	if err := fromJSON(m.Matches, &p.Matches); err != nil {
		return nil, err
	}
	if len(m.Applied) > 0 {
		p.Applied = &domain.AppliedRecord{}
		if err := fromJSON(m.Applied, p.Applied); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func toBatchModel(b *domain.PaymentBatch) (*BatchModel, error) {
	summary, err := toJSON(b.Summary)
	if err != nil {
		return nil, err
	}
	var stats []byte
	if b.Stats != nil {
		if stats, err = toJSON(b.Stats); err != nil {
			return nil, err
		}
	}
	return &BatchModel{
		ID:                 b.ID,
		FileName:           b.FileName,
		UploadedAt:         b.UploadedAt,
		RecordCount:        b.RecordCount,
		DeclaredTotalCents: b.DeclaredTotalCents,
		Status:             string(b.Status),
		ValidRecords:       b.ValidRecords,
		InvalidRecords:     b.InvalidRecords,
		ProcessedRecords:   b.ProcessedRecords,
		Summary:            summary,
		Stats:              stats,
		StartedAt:          b.StartedAt,
		CompletedAt:        b.CompletedAt,
		UpdatedAt:          b.UpdatedAt,
	}, nil
}

func toBatch(m BatchModel) (*domain.PaymentBatch, error) {
	b := &domain.PaymentBatch{
		ID:                 m.ID,
		FileName:           m.FileName,
		UploadedAt:         m.UploadedAt,
		RecordCount:        m.RecordCount,
		DeclaredTotalCents: m.DeclaredTotalCents,
		Status:             domain.BatchStatus(m.Status),
		ValidRecords:       m.ValidRecords,
		InvalidRecords:     m.InvalidRecords,
		ProcessedRecords:   m.ProcessedRecords,
		StartedAt:          m.StartedAt,
		CompletedAt:        m.CompletedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if err := fromJSON(m.Summary, &b.Summary); err != nil {
		return nil, err
	}
	if len(m.Stats) > 0 {
		b.Stats = &domain.BatchStats{}
		if err := fromJSON(m.Stats, b.Stats); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func toRecordModel(r *domain.BatchRecord) (*RecordModel, error) {
	fields, err := toJSON(r.Fields)
	if err != nil {
		return nil, err
	}
	errs, err := toJSON(r.Errors)
	if err != nil {
		return nil, err
	}
	var result []byte
	if r.Result != nil {
		if result, err = toJSON(r.Result); err != nil {
			return nil, err
		}
	}
	var date *time.Time
	if !r.PaymentDate.IsZero() {
		d := r.PaymentDate
		date = &d
	}
	return &RecordModel{
		ID:            r.ID,
		RowNumber:     r.RowNumber,
		LoanRef:       r.LoanRef,
		AmountCents:   r.AmountCents,
		PaymentDate:   date,
		Method:        string(r.Method),
		AccountNumber: r.AccountNumber,
		RoutingNumber: r.RoutingNumber,
		Reference:     r.Reference,
		Fields:        fields,
		Status:        string(r.Status),
		Errors:        errs,
		Result:        result,
		LatencyNanos:  int64(r.Latency),
	}, nil
}

func toRecord(m RecordModel) (*domain.BatchRecord, error) {
	r := &domain.BatchRecord{
		ID:            m.ID,
		RowNumber:     m.RowNumber,
		LoanRef:       m.LoanRef,
		AmountCents:   m.AmountCents,
		Method:        domain.PaymentMethod(m.Method),
		AccountNumber: m.AccountNumber,
		RoutingNumber: m.RoutingNumber,
		Reference:     m.Reference,
		Status:        domain.RecordStatus(m.Status),
		Latency:       time.Duration(m.LatencyNanos),
	}
	if m.PaymentDate != nil {
		r.PaymentDate = *m.PaymentDate
	}
	if err := fromJSON(m.Fields, &r.Fields); err != nil {
		return nil, err
	}
	if err := fromJSON(m.Errors, &r.Errors); err != nil {
		return nil, err
	}
	if len(m.Result) > 0 {
		r.Result = &domain.RecordResult{}
		if err := fromJSON(m.Result, r.Result); err != nil {
			return nil, err
		}
	}
	return r, nil
}
