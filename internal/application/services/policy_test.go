package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/persistence/memory"
)

type PolicyServiceTestSuite struct {
	suite.Suite
	repo    *memory.PolicyRepository
	service *services.PolicyService
}

func TestPolicyServiceSuite(t *testing.T) {
	suite.Run(t, new(PolicyServiceTestSuite))
}

func (suite *PolicyServiceTestSuite) SetupTest() {
	suite.repo = memory.NewPolicyRepository()
	suite.service = services.NewPolicyService(suite.repo, discardLogger())
}

func cardPolicy(id string, priority int) *domain.RetryPolicy {
	return &domain.RetryPolicy{
		ID:                      id,
		Name:                    "Card soft decline",
		Enabled:                 true,
		Intervals:               []time.Duration{day},
		MaxAttempts:             2,
		BackoffMultiplier:       1,
		StopOnSuccess:           true,
		EscalateAfterMaxRetries: true,
		PaymentMethods:          []domain.PaymentMethod{domain.MethodCard},
		FailureReasons:          []domain.FailureReason{domain.ReasonCardDeclined},
		Priority:                priority,
	}
}

// ============================================================================
// REGISTRY
// ============================================================================

func (suite *PolicyServiceTestSuite) Test_Update_ValidatesAndStores() {
	ctx := context.Background()
	t := suite.T()

	saved, err := suite.service.Update(ctx, nsfPolicy())
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := suite.service.Get(ctx, "nsf-ach")
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxAttempts)

	broken := nsfPolicy()
	broken.MaxAttempts = 1
	_, err = suite.service.Update(ctx, broken)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeInvalidInput, svcErr.Code)
}

func (suite *PolicyServiceTestSuite) Test_List_OrdersByPriority() {
	ctx := context.Background()
	t := suite.T()

	for _, p := range []*domain.RetryPolicy{cardPolicy("b", 20), cardPolicy("c", 5), cardPolicy("a", 20)} {
		_, err := suite.service.Update(ctx, p)
		require.NoError(t, err)
	}

	policies, err := suite.service.List(ctx)
	require.NoError(t, err)
	var ids []string
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func (suite *PolicyServiceTestSuite) Test_Select_PrefersLowestPriorityAndSkipsDisabled() {
	ctx := context.Background()
	t := suite.T()

	preferred := cardPolicy("preferred", 1)
	preferred.Enabled = false
	for _, p := range []*domain.RetryPolicy{preferred, cardPolicy("fallback", 50), nsfPolicy()} {
		_, err := suite.service.Update(ctx, p)
		require.NoError(t, err)
	}

	selected, err := suite.service.Select(ctx, domain.MethodCard, domain.ReasonCardDeclined)
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "fallback", selected.ID)

	none, err := suite.service.Select(ctx, domain.MethodWire, domain.ReasonInsufficientFunds)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func (suite *PolicyServiceTestSuite) Test_Delete() {
	ctx := context.Background()
	t := suite.T()

	_, err := suite.service.Update(ctx, nsfPolicy())
	require.NoError(t, err)
	require.NoError(t, suite.service.Delete(ctx, "nsf-ach"))

	_, err = suite.service.Get(ctx, "nsf-ach")
	assert.ErrorIs(t, err, domain.ErrPolicyNotFound)

	err = suite.service.Delete(ctx, "nsf-ach")
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeNotFound, svcErr.Code)

	missing, err := suite.service.Lookup(ctx, "nsf-ach")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func (suite *PolicyServiceTestSuite) Test_Seed_OnlyFillsEmptyRegistry() {
	ctx := context.Background()
	t := suite.T()

	n, err := suite.service.Seed(ctx, []*domain.RetryPolicy{nsfPolicy(), cardPolicy("card", 10)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = suite.service.Seed(ctx, []*domain.RetryPolicy{cardPolicy("other", 1)})
	require.NoError(t, err)
	assert.Zero(t, n)

	policies, err := suite.service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, policies, 2)
}
