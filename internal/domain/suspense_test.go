package domain_test

import (
	"testing"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSuspense(t *testing.T) *domain.SuspensePayment {
	t.Helper()
	s, err := domain.NewSuspensePayment("sp-1", 150000, day0)
	require.NoError(t, err)
	return s
}

func TestSuspensePayment_Apply(t *testing.T) {
	t.Run("applies an exact allocation", func(t *testing.T) {
		s := newSuspense(t)
		alloc := domain.Allocation{PrincipalCents: 100000, InterestCents: 40000, FeesCents: 5000, EscrowCents: 5000}

		require.NoError(t, s.Apply("L1", "ops@lender", alloc, day0))

		assert.Equal(t, domain.SuspenseMatched, s.Status)
		require.NotNil(t, s.Applied)
		assert.Equal(t, "L1", s.Applied.LoanID)
		assert.Equal(t, s.AmountCents, s.Applied.Allocation.Total())
	})

	t.Run("rejects an allocation that leaks cents", func(t *testing.T) {
		s := newSuspense(t)

		err := s.Apply("L1", "ops", domain.Allocation{PrincipalCents: 149999}, day0)

		assert.ErrorIs(t, err, domain.ErrAllocationMismatch)
		assert.Equal(t, domain.SuspenseUnmatched, s.Status)
		assert.Nil(t, s.Applied)
	})

	t.Run("matched is immutable", func(t *testing.T) {
		s := newSuspense(t)
		require.NoError(t, s.Apply("L1", "ops", domain.Allocation{PrincipalCents: 150000}, day0))

		assert.ErrorIs(t, s.Reject("ops", "wrong loan", day0), domain.ErrInvalidTransition)
		assert.ErrorIs(t, s.SetResearchStatus(domain.SuspenseResearching, day0), domain.ErrInvalidTransition)
		assert.Error(t, s.Apply("L2", "ops", domain.Allocation{PrincipalCents: 150000}, day0))
		assert.Error(t, s.SetMatches(nil, day0))
		assert.Equal(t, "L1", s.Applied.LoanID)
	})
}

func TestSuspensePayment_ClaimForApply(t *testing.T) {
	alloc := domain.Allocation{PrincipalCents: 150000}

	t.Run("claim blocks competing actions", func(t *testing.T) {
		s := newSuspense(t)
		require.NoError(t, s.SetResearchStatus(domain.SuspenseResearching, day0))
		require.NoError(t, s.ClaimForApply("L1", "ops", alloc, day0))

		assert.Equal(t, domain.SuspenseApplying, s.Status)
		assert.True(t, s.IsClosed())
		assert.ErrorIs(t, s.Reject("ops", "wrong loan", day0), domain.ErrInvalidTransition)
		assert.ErrorIs(t, s.SetResearchStatus(domain.SuspenseUnmatched, day0), domain.ErrInvalidTransition)
		assert.ErrorIs(t, s.ClaimForApply("L2", "ops", alloc, day0), domain.ErrAlreadyClaimed)
		assert.ErrorIs(t, s.Apply("L2", "ops", alloc, day0), domain.ErrAlreadyClaimed)

		require.NoError(t, s.Apply("L1", "ops", alloc, day0))
		assert.Equal(t, domain.SuspenseMatched, s.Status)
		assert.Empty(t, s.Applied.ClaimedFrom)
	})

	t.Run("release restores the prior status", func(t *testing.T) {
		s := newSuspense(t)
		require.NoError(t, s.SetResearchStatus(domain.SuspensePendingApproval, day0))
		require.NoError(t, s.ClaimForApply("L1", "ops", alloc, day0))

		require.NoError(t, s.ReleaseApply("ops", "connection reset", day0))

		assert.Equal(t, domain.SuspensePendingApproval, s.Status)
		assert.Nil(t, s.Applied)
		require.Len(t, s.Notes, 1)
		assert.Equal(t, "Apply to loan L1 failed: connection reset", s.Notes[0].Text)
		assert.Error(t, s.ReleaseApply("ops", "again", day0))
	})

	t.Run("stale claim is taken over for the same loan only", func(t *testing.T) {
		s := newSuspense(t)
		require.NoError(t, s.ClaimForApply("L1", "ops-1", alloc, day0))

		later := day0.Add(domain.ApplyClaimTimeout)
		assert.ErrorIs(t, s.ClaimForApply("L1", "ops-2", alloc, day0.Add(time.Minute)), domain.ErrAlreadyClaimed)
		assert.ErrorIs(t, s.ClaimForApply("L2", "ops-2", alloc, later), domain.ErrAlreadyClaimed)
		require.NoError(t, s.ClaimForApply("L1", "ops-2", alloc, later))

		assert.Equal(t, "ops-2", s.Applied.AppliedBy)
		assert.Equal(t, domain.SuspenseUnmatched, s.Applied.ClaimedFrom)
	})
}

func TestSuspensePayment_Reject(t *testing.T) {
	s := newSuspense(t)
	s.AddNote("ops", "called bank", day0)

	require.NoError(t, s.Reject("ops", "not our customer", day0))

	assert.Equal(t, domain.SuspenseRejected, s.Status)
	require.Len(t, s.Notes, 2)
	assert.Equal(t, "called bank", s.Notes[0].Text)
	assert.Equal(t, "Rejected: not our customer", s.Notes[1].Text)

	t.Run("refund follows rejection", func(t *testing.T) {
		require.NoError(t, s.MarkRefunded("ops", day0))
		assert.Equal(t, domain.SuspenseRefunded, s.Status)
	})

	t.Run("reason is required", func(t *testing.T) {
		other := newSuspense(t)
		assert.ErrorIs(t, other.Reject("ops", "  ", day0), domain.ErrMissingRequiredField)
	})
}

func TestSuspensePayment_Research(t *testing.T) {
	s := newSuspense(t)
	matches := []domain.LoanMatch{{LoanID: "L1", Confidence: 70}}
	require.NoError(t, s.SetMatches(matches, day0))

	require.NoError(t, s.Assign("maria", day0))
	require.NoError(t, s.SetResearchStatus(domain.SuspenseResearching, day0))
	require.NoError(t, s.SetResearchStatus(domain.SuspensePendingApproval, day0))
	s.AddNote("maria", "waiting on borrower", day0)

	assert.Equal(t, domain.SuspensePendingApproval, s.Status)
	assert.Equal(t, "maria", s.AssignedTo)
	assert.Equal(t, matches, s.Matches)
	assert.Equal(t, 70, s.BestConfidence())

	t.Run("research statuses cannot close a payment", func(t *testing.T) {
		assert.Error(t, s.SetResearchStatus(domain.SuspenseMatched, day0))
		assert.Error(t, s.SetResearchStatus(domain.SuspenseRejected, day0))
	})
}

func TestSuspensePayment_AgeDays(t *testing.T) {
	s := newSuspense(t)

	assert.Equal(t, 0, s.AgeDays(day0))
	assert.Equal(t, 8, s.AgeDays(day0.Add(8*day+time.Hour)))
}

func TestWaterfallAllocation(t *testing.T) {
	l := domain.LoanSummary{PrincipalBalanceCents: 1000, AccruedInterestCents: 300, OutstandingFeesCents: 50}

	t.Run("fills buckets in order", func(t *testing.T) {
		a := domain.WaterfallAllocation(1200, l)

		assert.Equal(t, domain.Allocation{PrincipalCents: 1000, InterestCents: 200}, a)
	})

	t.Run("remainder goes to escrow", func(t *testing.T) {
		a := domain.WaterfallAllocation(2000, l)

		assert.Equal(t, int64(650), a.EscrowCents)
		require.NoError(t, a.Validate(2000))
	})
}
