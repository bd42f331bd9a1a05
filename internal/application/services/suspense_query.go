package services

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// Age buckets for the suspense list, in days since receipt.
const (
	AgeBucketWeek     = "0-7"
	AgeBucketMonth    = "8-30"
	AgeBucketTwoMonth = "31-60"
	AgeBucketOlder    = "60+"
)

const (
	SortByAmount     = "amount"
	SortByDate       = "date"
	SortByAge        = "age"
	SortByConfidence = "confidence"
)

// SuspenseQuery filters and orders the suspense list.
type SuspenseQuery struct {
	Status     domain.SuspenseStatus
	ReasonCode string
	AgeBucket  string
	Search     string
	SortBy     string
	Ascending  bool
}

func (q SuspenseQuery) Validate() error {
	switch q.AgeBucket {
	case "", AgeBucketWeek, AgeBucketMonth, AgeBucketTwoMonth, AgeBucketOlder:
	default:
		return fmt.Errorf("unknown age bucket %q", q.AgeBucket)
	}
	switch q.SortBy {
	case "", SortByAmount, SortByDate, SortByAge, SortByConfidence:
	default:
		return fmt.Errorf("unknown sort field %q", q.SortBy)
	}
	return nil
}

// Apply returns the matching payments in the requested order. Default order is
// newest first.
func (q SuspenseQuery) Apply(payments []*domain.SuspensePayment, now time.Time) []*domain.SuspensePayment {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]*domain.SuspensePayment, 0, len(payments))
	for _, p := range payments {
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		if q.ReasonCode != "" && !strings.EqualFold(p.ReasonCode, q.ReasonCode) {
			continue
		}
		if q.AgeBucket != "" && !inAgeBucket(p.AgeDays(now), q.AgeBucket) {
			continue
		}
		if needle != "" && !matchesSearch(p, needle) {
			continue
		}
		out = append(out, p)
	}

	key := q.sortKey(now)
	slices.SortStableFunc(out, func(a, b *domain.SuspensePayment) int {
		c := cmp.Compare(key(a), key(b))
		if !q.Ascending {
			c = -c
		}
		return cmp.Or(c, cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (q SuspenseQuery) sortKey(now time.Time) func(*domain.SuspensePayment) int64 {
	switch q.SortBy {
	case SortByAmount:
		return func(p *domain.SuspensePayment) int64 { return p.AmountCents }
	case SortByAge:
		return func(p *domain.SuspensePayment) int64 { return int64(p.AgeDays(now)) }
	case SortByConfidence:
		return func(p *domain.SuspensePayment) int64 { return int64(p.BestConfidence()) }
	default:
		return func(p *domain.SuspensePayment) int64 { return p.ReceivedAt.UnixNano() }
	}
}

func inAgeBucket(age int, bucket string) bool {
	switch bucket {
	case AgeBucketWeek:
		return age <= 7
	case AgeBucketMonth:
		return age >= 8 && age <= 30
	case AgeBucketTwoMonth:
		return age >= 31 && age <= 60
	case AgeBucketOlder:
		return age > 60
	}
	return true
}

func matchesSearch(p *domain.SuspensePayment, needle string) bool {
	for _, field := range []string{
		p.ID, p.ReferenceNumber, p.CustomerName, p.CustomerEmail,
		p.CustomerPhone, p.AccountNumber, p.Source, domain.FormatCents(p.AmountCents),
	} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
