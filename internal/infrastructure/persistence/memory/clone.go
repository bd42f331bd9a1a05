package memory

import (
	"maps"
	"slices"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// The store hands out copies so callers can never mutate stored state
// without going through the repository.

func ptr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clonePolicy(p *domain.RetryPolicy) *domain.RetryPolicy {
	c := *p
	c.Intervals = slices.Clone(p.Intervals)
	c.PaymentMethods = slices.Clone(p.PaymentMethods)
	c.FailureReasons = slices.Clone(p.FailureReasons)
	return &c
}

func cloneAttempt(a *domain.PaymentAttempt) *domain.PaymentAttempt {
	c := *a
	c.ProcessedAt = ptr(a.ProcessedAt)
	c.NextRetryAt = ptr(a.NextRetryAt)
	c.LastFailureReason = ptr(a.LastFailureReason)
	c.LastFailureCode = ptr(a.LastFailureCode)
	c.TransactionID = ptr(a.TransactionID)
	c.Metadata = maps.Clone(a.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	return &c
}

func cloneEntry(e *domain.FailureQueueEntry) *domain.FailureQueueEntry {
	c := *e
	c.NextRetryAt = ptr(e.NextRetryAt)
	c.LastContactAt = ptr(e.LastContactAt)
	c.ResolvedAt = ptr(e.ResolvedAt)
	c.Notes = slices.Clone(e.Notes)
	return &c
}

func cloneSuspense(p *domain.SuspensePayment) *domain.SuspensePayment {
	c := *p
	c.Notes = slices.Clone(p.Notes)
	c.Matches = make([]domain.LoanMatch, len(p.Matches))
	for i, m := range p.Matches {
		m.Reasons = slices.Clone(m.Reasons)
		c.Matches[i] = m
	}
	c.Applied = ptr(p.Applied)
	return &c
}

func cloneRecord(r *domain.BatchRecord) *domain.BatchRecord {
	c := *r
	c.Fields = maps.Clone(r.Fields)
	c.Errors = slices.Clone(r.Errors)
	c.Result = ptr(r.Result)
	return &c
}

func cloneBatch(b *domain.PaymentBatch) *domain.PaymentBatch {
	c := *b
	c.Records = make([]*domain.BatchRecord, len(b.Records))
	for i, r := range b.Records {
		c.Records[i] = cloneRecord(r)
	}
	c.Stats = ptr(b.Stats)
	c.StartedAt = ptr(b.StartedAt)
	c.CompletedAt = ptr(b.CompletedAt)
	return &c
}
