package domain_test

import (
	"testing"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loan(id, name string, expected int64, due time.Time) domain.LoanSummary {
	return domain.LoanSummary{
		LoanID:               id,
		BorrowerName:         name,
		ExpectedPaymentCents: expected,
		NextPaymentDue:       due,
		CurrentBalanceCents:  expected * 100,
	}
}

func TestScoringWeights_Score(t *testing.T) {
	w := domain.DefaultScoringWeights()

	t.Run("exact amount and name is a strong match", func(t *testing.T) {
		m := w.Score(150000, domain.IdentitySignals{Name: "Ada Obi"}, loan("L1", "ada  obi", 150000, day0))

		assert.GreaterOrEqual(t, m.Confidence, 80)
		assert.Equal(t, domain.TierStrong, m.Tier)
		assert.Contains(t, m.Reasons, domain.ReasonExactAmount)
		assert.Contains(t, m.Reasons, domain.ReasonNameExact)
	})

	t.Run("amount range and account ending is moderate", func(t *testing.T) {
		l := loan("L2", "Somebody Else", 100000, day0)
		l.AccountNumber = "000012345678"

		m := w.Score(98000, domain.IdentitySignals{AccountNumber: "5678"}, l)

		assert.Equal(t, domain.TierModerate, m.Tier)
		assert.Equal(t, []string{domain.ReasonAmountRange, domain.ReasonAccountPartial}, m.Reasons)
	})

	t.Run("contact only is weak", func(t *testing.T) {
		l := loan("L3", "Chidi Okafor", 50000, day0)
		l.BorrowerPhone = "+1 (555) 010-2030"

		m := w.Score(12300, domain.IdentitySignals{Phone: "555-010-2030"}, l)

		assert.Equal(t, domain.TierWeak, m.Tier)
		assert.Equal(t, []string{domain.ReasonPhone}, m.Reasons)
	})

	t.Run("partial name", func(t *testing.T) {
		m := w.Score(1, domain.IdentitySignals{Name: "J. Okafor"}, loan("L4", "Chidi Okafor", 50000, day0))

		assert.Equal(t, []string{domain.ReasonNamePartial}, m.Reasons)
	})

	t.Run("clamped to 100", func(t *testing.T) {
		l := loan("L5", "Ada Obi", 150000, day0)
		l.BorrowerEmail = "ada@example.com"
		l.AccountNumber = "99991234"
		l.RoutingNumber = "021000021"

		m := w.Score(150000, domain.IdentitySignals{
			Name: "Ada Obi", Email: "ADA@example.com", AccountNumber: "1234", RoutingNumber: "021000021",
		}, l)

		assert.Equal(t, 100, m.Confidence)
	})
}

func TestScoringWeights_Rank(t *testing.T) {
	w := domain.DefaultScoringWeights()
	loans := []domain.LoanSummary{
		loan("L-old", "Ada Obi", 150000, day0),
		loan("L-none", "Nobody", 999, day0),
		loan("L-new", "Ada Obi", 150000, day0.Add(30*day)),
		loan("L-amount", "Other Person", 150000, day0),
	}

	got := w.Rank(150000, domain.IdentitySignals{Name: "Ada Obi"}, loans)

	require.Len(t, got, 3)
	assert.Equal(t, "L-new", got[0].LoanID, "ties break by most recent due date")
	assert.Equal(t, "L-old", got[1].LoanID)
	assert.Equal(t, "L-amount", got[2].LoanID)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
	}
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, domain.TierStrong, domain.TierFor(81))
	assert.Equal(t, domain.TierModerate, domain.TierFor(80))
	assert.Equal(t, domain.TierModerate, domain.TierFor(60))
	assert.Equal(t, domain.TierWeak, domain.TierFor(59))
}
