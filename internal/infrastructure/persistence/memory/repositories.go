// Package memory holds in-process repositories used for local runs and tests.
// Each repository serializes access with its own lock, which gives Claim and
// Modify the same atomicity the Postgres repositories get from row locks.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[max(offset, 0):]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type PolicyRepository struct {
	mu       sync.RWMutex
	policies map[string]*domain.RetryPolicy
}

func NewPolicyRepository() *PolicyRepository {
	return &PolicyRepository{policies: make(map[string]*domain.RetryPolicy)}
}

func (r *PolicyRepository) List(_ context.Context) ([]*domain.RetryPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.RetryPolicy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, clonePolicy(p))
	}
	slices.SortFunc(out, func(a, b *domain.RetryPolicy) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *PolicyRepository) FindByID(_ context.Context, id string) (*domain.RetryPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrPolicyNotFound, id)
	}
	return clonePolicy(p), nil
}

func (r *PolicyRepository) Save(_ context.Context, policy *domain.RetryPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[policy.ID] = clonePolicy(policy)
	return nil
}

func (r *PolicyRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[id]; !ok {
		return domain.NewNotFoundError(domain.ErrPolicyNotFound, id)
	}
	delete(r.policies, id)
	return nil
}

type AttemptRepository struct {
	mu       sync.RWMutex
	attempts map[string]*domain.PaymentAttempt
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{attempts: make(map[string]*domain.PaymentAttempt)}
}

func (r *AttemptRepository) Create(_ context.Context, attempt *domain.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[attempt.ID]; ok {
		return fmt.Errorf("attempt %s already exists", attempt.ID)
	}
	r.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (r *AttemptRepository) FindByID(_ context.Context, id string) (*domain.PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrAttemptNotFound, id)
	}
	return cloneAttempt(a), nil
}

func (r *AttemptRepository) Update(_ context.Context, attempt *domain.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[attempt.ID]; !ok {
		return domain.NewNotFoundError(domain.ErrAttemptNotFound, attempt.ID)
	}
	r.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (r *AttemptRepository) List(_ context.Context, status domain.AttemptStatus, limit, offset int) ([]*domain.PaymentAttempt, error) {
	out := r.filter(func(a *domain.PaymentAttempt) bool {
		return status == "" || a.Status == status
	})
	slices.SortFunc(out, func(a, b *domain.PaymentAttempt) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return page(out, limit, offset), nil
}

func (r *AttemptRepository) FindDue(_ context.Context, now time.Time, limit int) ([]*domain.PaymentAttempt, error) {
	out := r.filter(func(a *domain.PaymentAttempt) bool { return a.IsDue(now) })
	slices.SortFunc(out, func(a, b *domain.PaymentAttempt) int {
		return cmp.Or(a.DueAt().Compare(b.DueAt()), cmp.Compare(a.ID, b.ID))
	})
	return page(out, limit, 0), nil
}

func (r *AttemptRepository) FindPendingByOriginal(_ context.Context, originalPaymentID string) ([]*domain.PaymentAttempt, error) {
	out := r.filter(func(a *domain.PaymentAttempt) bool {
		return a.OriginalPaymentID == originalPaymentID && a.Status == domain.AttemptPending
	})
	slices.SortFunc(out, func(a, b *domain.PaymentAttempt) int {
		return cmp.Compare(a.AttemptNumber, b.AttemptNumber)
	})
	return out, nil
}

func (r *AttemptRepository) Claim(_ context.Context, id string, now time.Time) (*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrAttemptNotFound, id)
	}
	if a.Status != domain.AttemptPending {
		return nil, domain.NewAlreadyClaimedError(id)
	}
	claimed := cloneAttempt(a)
	if err := claimed.MarkProcessing(now); err != nil {
		return nil, err
	}
	r.attempts[id] = claimed
	return cloneAttempt(claimed), nil
}

func (r *AttemptRepository) Modify(_ context.Context, id string, fn func(*domain.PaymentAttempt) error) (*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrAttemptNotFound, id)
	}
	working := cloneAttempt(a)
	if err := fn(working); err != nil {
		return nil, err
	}
	r.attempts[id] = working
	return cloneAttempt(working), nil
}

func (r *AttemptRepository) FindStale(_ context.Context, claimedBefore time.Time, limit int) ([]*domain.PaymentAttempt, error) {
	out := r.filter(func(a *domain.PaymentAttempt) bool { return a.IsStaleClaim(claimedBefore) })
	slices.SortFunc(out, func(a, b *domain.PaymentAttempt) int {
		return cmp.Or(a.UpdatedAt.Compare(b.UpdatedAt), cmp.Compare(a.ID, b.ID))
	})
	return page(out, limit, 0), nil
}

func (r *AttemptRepository) ReclaimStale(_ context.Context, id string, claimedBefore, now time.Time) (*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrAttemptNotFound, id)
	}
	reclaimed := cloneAttempt(a)
	if err := reclaimed.Reclaim(claimedBefore, now); err != nil {
		return nil, err
	}
	r.attempts[id] = reclaimed
	return cloneAttempt(reclaimed), nil
}

func (r *AttemptRepository) filter(keep func(*domain.PaymentAttempt) bool) []*domain.PaymentAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.PaymentAttempt
	for _, a := range r.attempts {
		if keep(a) {
			out = append(out, cloneAttempt(a))
		}
	}
	return out
}

type FailureQueueRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.FailureQueueEntry
}

func NewFailureQueueRepository() *FailureQueueRepository {
	return &FailureQueueRepository{entries: make(map[string]*domain.FailureQueueEntry)}
}

func (r *FailureQueueRepository) Create(_ context.Context, entry *domain.FailureQueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ID]; ok {
		return fmt.Errorf("failure entry %s already exists", entry.ID)
	}
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *FailureQueueRepository) FindByID(_ context.Context, id string) (*domain.FailureQueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrEntryNotFound, id)
	}
	return cloneEntry(e), nil
}

func (r *FailureQueueRepository) List(_ context.Context, filter application.FailureFilter) ([]*domain.FailureQueueEntry, error) {
	r.mu.RLock()
	var out []*domain.FailureQueueEntry
	for _, e := range r.entries {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Escalated != nil && e.Escalated != *filter.Escalated {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.FailureQueueEntry) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *FailureQueueRepository) Modify(_ context.Context, id string, fn func(*domain.FailureQueueEntry) error) (*domain.FailureQueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrEntryNotFound, id)
	}
	working := cloneEntry(e)
	if err := fn(working); err != nil {
		return nil, err
	}
	r.entries[id] = working
	return cloneEntry(working), nil
}

type SuspenseRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.SuspensePayment
}

func NewSuspenseRepository() *SuspenseRepository {
	return &SuspenseRepository{payments: make(map[string]*domain.SuspensePayment)}
}

func (r *SuspenseRepository) Create(_ context.Context, payment *domain.SuspensePayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.ID]; ok {
		return fmt.Errorf("suspense payment %s already exists", payment.ID)
	}
	r.payments[payment.ID] = cloneSuspense(payment)
	return nil
}

func (r *SuspenseRepository) FindByID(_ context.Context, id string) (*domain.SuspensePayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrSuspenseNotFound, id)
	}
	return cloneSuspense(p), nil
}

func (r *SuspenseRepository) List(_ context.Context, statuses ...domain.SuspenseStatus) ([]*domain.SuspensePayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.SuspensePayment
	for _, p := range r.payments {
		if len(statuses) > 0 && !slices.Contains(statuses, p.Status) {
			continue
		}
		out = append(out, cloneSuspense(p))
	}
	slices.SortFunc(out, func(a, b *domain.SuspensePayment) int {
		return cmp.Or(a.ReceivedAt.Compare(b.ReceivedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r *SuspenseRepository) Modify(_ context.Context, id string, fn func(*domain.SuspensePayment) error) (*domain.SuspensePayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrSuspenseNotFound, id)
	}
	working := cloneSuspense(p)
	if err := fn(working); err != nil {
		return nil, err
	}
	r.payments[id] = working
	return cloneSuspense(working), nil
}

type BatchRepository struct {
	mu      sync.RWMutex
	batches map[string]*domain.PaymentBatch
}

func NewBatchRepository() *BatchRepository {
	return &BatchRepository{batches: make(map[string]*domain.PaymentBatch)}
}

func (r *BatchRepository) Create(_ context.Context, batch *domain.PaymentBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[batch.ID]; ok {
		return fmt.Errorf("batch %s already exists", batch.ID)
	}
	r.batches[batch.ID] = cloneBatch(batch)
	return nil
}

func (r *BatchRepository) FindByID(_ context.Context, id string) (*domain.PaymentBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.ErrBatchNotFound, id)
	}
	return cloneBatch(b), nil
}

func (r *BatchRepository) List(_ context.Context, limit, offset int) ([]*domain.PaymentBatch, error) {
	r.mu.RLock()
	out := make([]*domain.PaymentBatch, 0, len(r.batches))
	for _, b := range r.batches {
		out = append(out, cloneBatch(b))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.PaymentBatch) int {
		return cmp.Or(b.UploadedAt.Compare(a.UploadedAt), cmp.Compare(a.ID, b.ID))
	})
	return page(out, limit, offset), nil
}

func (r *BatchRepository) Update(_ context.Context, batch *domain.PaymentBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[batch.ID]; !ok {
		return domain.NewNotFoundError(domain.ErrBatchNotFound, batch.ID)
	}
	r.batches[batch.ID] = cloneBatch(batch)
	return nil
}

// UpdateRecord replaces one record and refreshes the batch counters.
func (r *BatchRepository) UpdateRecord(_ context.Context, batchID string, record *domain.BatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return domain.NewNotFoundError(domain.ErrBatchNotFound, batchID)
	}
	idx := slices.IndexFunc(b.Records, func(x *domain.BatchRecord) bool { return x.ID == record.ID })
	if idx < 0 {
		return fmt.Errorf("record %s not found in batch %s", record.ID, batchID)
	}
	b.Records[idx] = cloneRecord(record)
	b.Recount()
	return nil
}

var (
	_ application.PolicyRepository       = (*PolicyRepository)(nil)
	_ application.AttemptRepository      = (*AttemptRepository)(nil)
	_ application.FailureQueueRepository = (*FailureQueueRepository)(nil)
	_ application.SuspenseRepository     = (*SuspenseRepository)(nil)
	_ application.BatchRepository        = (*BatchRepository)(nil)
)
