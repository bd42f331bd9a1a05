package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

func suspenseFixture(t *testing.T, id string, amount int64, ageDays int, confidence int) *domain.SuspensePayment {
	t.Helper()
	p, err := domain.NewSuspensePayment(id, amount, day0.Add(-day*time.Duration(ageDays)))
	require.NoError(t, err)
	if confidence > 0 {
		p.Matches = []domain.LoanMatch{{LoanID: "LN-" + id, Confidence: confidence}}
	}
	return p
}

func ids(payments []*domain.SuspensePayment) []string {
	var out []string
	for _, p := range payments {
		out = append(out, p.ID)
	}
	return out
}

func TestSuspenseQuery_Validate(t *testing.T) {
	assert.NoError(t, services.SuspenseQuery{AgeBucket: services.AgeBucketOlder, SortBy: services.SortByAmount}.Validate())
	assert.Error(t, services.SuspenseQuery{AgeBucket: "90+"}.Validate())
	assert.Error(t, services.SuspenseQuery{SortBy: "borrower"}.Validate())
}

func TestSuspenseQuery_AgeBuckets(t *testing.T) {
	payments := []*domain.SuspensePayment{
		suspenseFixture(t, "fresh", 100, 7, 0),
		suspenseFixture(t, "week-two", 100, 8, 0),
		suspenseFixture(t, "month", 100, 30, 0),
		suspenseFixture(t, "two-month", 100, 60, 0),
		suspenseFixture(t, "stale", 100, 61, 0),
	}

	tests := []struct {
		bucket string
		want   []string
	}{
		{services.AgeBucketWeek, []string{"fresh"}},
		{services.AgeBucketMonth, []string{"week-two", "month"}},
		{services.AgeBucketTwoMonth, []string{"two-month"}},
		{services.AgeBucketOlder, []string{"stale"}},
	}
	for _, tt := range tests {
		t.Run(tt.bucket, func(t *testing.T) {
			q := services.SuspenseQuery{AgeBucket: tt.bucket, SortBy: services.SortByAge, Ascending: true}
			assert.Equal(t, tt.want, ids(q.Apply(payments, day0)))
		})
	}
}

func TestSuspenseQuery_SearchAndSort(t *testing.T) {
	small := suspenseFixture(t, "small", 5_000, 1, 40)
	small.CustomerName = "Ada Obi"
	large := suspenseFixture(t, "large", 250_000, 3, 90)
	large.ReferenceNumber = "WIRE-77"
	large.ReasonCode = "NO_REFERENCE"
	middle := suspenseFixture(t, "middle", 20_000, 2, 0)
	payments := []*domain.SuspensePayment{small, large, middle}

	// default is newest first
	assert.Equal(t, []string{"small", "middle", "large"}, ids(services.SuspenseQuery{}.Apply(payments, day0)))
	assert.Equal(t, []string{"small", "middle", "large"},
		ids(services.SuspenseQuery{SortBy: services.SortByAmount, Ascending: true}.Apply(payments, day0)))
	assert.Equal(t, []string{"large", "small", "middle"},
		ids(services.SuspenseQuery{SortBy: services.SortByConfidence}.Apply(payments, day0)))

	assert.Equal(t, []string{"small"}, ids(services.SuspenseQuery{Search: "ada"}.Apply(payments, day0)))
	assert.Equal(t, []string{"large"}, ids(services.SuspenseQuery{Search: "wire-77"}.Apply(payments, day0)))
	assert.Equal(t, []string{"large"}, ids(services.SuspenseQuery{ReasonCode: "no_reference"}.Apply(payments, day0)))
	assert.Equal(t, []string{"middle"}, ids(services.SuspenseQuery{Search: "200.00"}.Apply(payments, day0)))
}

func TestSuspenseQuery_StatusFilter(t *testing.T) {
	open := suspenseFixture(t, "open", 100, 1, 0)
	researching := suspenseFixture(t, "researching", 100, 1, 0)
	require.NoError(t, researching.SetResearchStatus(domain.SuspenseResearching, day0))

	q := services.SuspenseQuery{Status: domain.SuspenseResearching}
	assert.Equal(t, []string{"researching"}, ids(q.Apply([]*domain.SuspensePayment{open, researching}, day0)))
}
