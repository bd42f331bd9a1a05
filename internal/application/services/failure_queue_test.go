package services_test

import (
	"context"
	"testing"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/application/mocks"
	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type FailureQueueServiceTestSuite struct {
	suite.Suite
	clock        *testClock
	policyRepo   *memory.PolicyRepository
	attemptRepo  *memory.AttemptRepository
	failureRepo  *memory.FailureQueueRepository
	tx           *faultyCoordinator
	applier      *mocks.PaymentApplier
	retryService *services.RetryService
	queueService *services.FailureQueueService
}

func TestFailureQueueServiceSuite(t *testing.T) {
	suite.Run(t, new(FailureQueueServiceTestSuite))
}

func (suite *FailureQueueServiceTestSuite) SetupTest() {
	suite.clock = newTestClock(day0)
	suite.policyRepo = memory.NewPolicyRepository()
	suite.attemptRepo = memory.NewAttemptRepository()
	suite.failureRepo = memory.NewFailureQueueRepository()
	suite.applier = &mocks.PaymentApplier{}

	logger := discardLogger()
	policies := services.NewPolicyService(suite.policyRepo, logger)
	suite.tx = &faultyCoordinator{inner: memory.NewTransactionCoordinator(suite.attemptRepo, suite.failureRepo)}
	suite.retryService = services.NewRetryService(
		suite.attemptRepo, suite.failureRepo, suite.tx, policies, suite.applier, nil, logger,
	).WithClock(suite.clock.Now)
	suite.queueService = services.NewFailureQueueService(
		suite.failureRepo, suite.attemptRepo, suite.tx, policies, logger,
	).WithClock(suite.clock.Now)
}

// escalatedEntry registers a CARD failure no policy covers, which lands in
// the queue straight away.
func (suite *FailureQueueServiceTestSuite) escalatedEntry() *domain.FailureQueueEntry {
	reg, err := suite.retryService.RegisterFailure(context.Background(), services.RegisterFailureCommand{
		LoanID:            "LN-300400",
		OriginalPaymentID: "pay-7",
		BorrowerName:      "Kemi Ade",
		AmountCents:       42000,
		Method:            domain.MethodCard,
		FailureReason:     domain.ReasonCardDeclined,
		FailureCode:       "05",
	})
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), reg.Entry)
	return reg.Entry
}

// ============================================================================
// AGENT ACTIONS
// ============================================================================

func (suite *FailureQueueServiceTestSuite) Test_List_FiltersByStatusAndEscalation() {
	ctx := context.Background()
	t := suite.T()

	entry := suite.escalatedEntry()
	escalated := true
	notEscalated := false

	found, err := suite.queueService.List(ctx, application.FailureFilter{Status: domain.FailureExhausted, Escalated: &escalated})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, entry.ID, found[0].ID)

	found, err = suite.queueService.List(ctx, application.FailureFilter{Escalated: &notEscalated})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = suite.queueService.List(ctx, application.FailureFilter{Status: domain.FailureResolved})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func (suite *FailureQueueServiceTestSuite) Test_RecordContact_StampsLastContact() {
	t := suite.T()
	entry := suite.escalatedEntry()
	suite.clock.Set(day0.Add(day))

	updated, err := suite.queueService.RecordContact(context.Background(), entry.ID, "agent-1", "left voicemail")
	require.NoError(t, err)
	require.NotNil(t, updated.LastContactAt)
	assert.Equal(t, day0.Add(day), *updated.LastContactAt)
	assert.Equal(t, "left voicemail", updated.Notes[len(updated.Notes)-1].Text)
}

func (suite *FailureQueueServiceTestSuite) Test_ManualRetry_SuccessResolvesEntry() {
	ctx := context.Background()
	t := suite.T()

	entry := suite.escalatedEntry()
	updated, attempt, err := suite.queueService.ManualRetry(ctx, entry.ID, "agent-1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureActiveRetry, updated.Status)
	assert.Equal(t, entry.ID, attempt.Metadata[domain.MetaManualRetryOf])
	assert.Equal(t, 1, attempt.MaxRetries)
	assert.Equal(t, day0, attempt.DueAt())

	suite.applier.On("Submit", mock.Anything, mock.Anything).
		Return(&application.PaymentReceipt{TransactionID: "txn-manual"}, nil)

	res, err := suite.retryService.ScanDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	resolved, err := suite.queueService.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureResolved, resolved.Status)
	assert.Equal(t, "system", resolved.ResolvedBy)
}

func (suite *FailureQueueServiceTestSuite) Test_ManualRetry_FailureReturnsEntryToExhausted() {
	ctx := context.Background()
	t := suite.T()

	entry := suite.escalatedEntry()
	_, attempt, err := suite.queueService.ManualRetry(ctx, entry.ID, "agent-1", nil)
	require.NoError(t, err)

	suite.applier.On("Submit", mock.Anything, mock.Anything).
		Return(nil, &application.PaymentFailure{Reason: domain.ReasonCardDeclined, Code: "05"})

	result, err := suite.retryService.ProcessNow(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptEscalated, result.Attempt.Status)

	back, err := suite.queueService.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureExhausted, back.Status)
	assert.Equal(t, 1, back.RetryCount)

	// The chain reuses the existing entry rather than opening a new one.
	all, err := suite.failureRepo.List(ctx, application.FailureFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func (suite *FailureQueueServiceTestSuite) Test_ManualRetry_AttemptWriteFailureLeavesEntryUntouched() {
	ctx := context.Background()
	t := suite.T()

	entry := suite.escalatedEntry()
	suite.tx.failAttemptCreate.Store(true)

	_, _, err := suite.queueService.ManualRetry(ctx, entry.ID, "agent-1", nil)
	require.Error(t, err)

	stored, err := suite.queueService.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureExhausted, stored.Status)
	assert.Len(t, stored.Notes, len(entry.Notes))
	attempts, err := suite.attemptRepo.List(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, attempts)

	suite.tx.failAttemptCreate.Store(false)
	updated, _, err := suite.queueService.ManualRetry(ctx, entry.ID, "agent-1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureActiveRetry, updated.Status)
}

func (suite *FailureQueueServiceTestSuite) Test_ManualRetry_AgentResolutionWinsOverLateFailure() {
	ctx := context.Background()
	t := suite.T()

	entry := suite.escalatedEntry()
	_, attempt, err := suite.queueService.ManualRetry(ctx, entry.ID, "agent-1", nil)
	require.NoError(t, err)

	suite.applier.On("Submit", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			_, err := suite.queueService.Resolve(ctx, entry.ID, "agent-2", "paid at branch")
			require.NoError(t, err)
		}).
		Return(nil, &application.PaymentFailure{Reason: domain.ReasonCardDeclined, Code: "05"})

	result, err := suite.retryService.ProcessNow(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptEscalated, result.Attempt.Status)

	stored, err := suite.queueService.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureResolved, stored.Status)
	assert.Equal(t, "agent-2", stored.ResolvedBy)
}

func (suite *FailureQueueServiceTestSuite) Test_ManualRetry_ScheduledLater() {
	t := suite.T()
	entry := suite.escalatedEntry()
	at := day0.Add(2 * day)

	updated, attempt, err := suite.queueService.ManualRetry(context.Background(), entry.ID, "agent-1", &at)
	require.NoError(t, err)
	require.NotNil(t, updated.NextRetryAt)
	assert.Equal(t, at, *updated.NextRetryAt)
	assert.Equal(t, at, attempt.DueAt())
}

func (suite *FailureQueueServiceTestSuite) Test_Cancel_StopsManualChain() {
	ctx := context.Background()
	t := suite.T()

	entry := suite.escalatedEntry()
	_, attempt, err := suite.queueService.ManualRetry(ctx, entry.ID, "agent-1", nil)
	require.NoError(t, err)

	cancelled, err := suite.queueService.Cancel(ctx, entry.ID, "agent-1", "borrower disputes debt")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureCancelled, cancelled.Status)

	stopped, err := suite.attemptRepo.FindByID(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCancelled, stopped.Status)
}

// ============================================================================
// ERROR CASES
// ============================================================================

func (suite *FailureQueueServiceTestSuite) Test_ResolvedEntry_RejectsFurtherActions() {
	ctx := context.Background()
	t := suite.T()

	entry := suite.escalatedEntry()
	_, err := suite.queueService.Resolve(ctx, entry.ID, "agent-1", "paid by check")
	require.NoError(t, err)

	_, _, err = suite.queueService.ManualRetry(ctx, entry.ID, "agent-1", nil)
	var svcErr *application.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, application.ErrCodeInvalidState, svcErr.Code)

	_, err = suite.queueService.RecordContact(ctx, entry.ID, "agent-1", "")
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, application.ErrCodeInvalidState, svcErr.Code)
}

func (suite *FailureQueueServiceTestSuite) Test_AddNote_RequiresText() {
	entry := suite.escalatedEntry()

	_, err := suite.queueService.AddNote(context.Background(), entry.ID, "agent-1", "")

	var svcErr *application.ServiceError
	require.ErrorAs(suite.T(), err, &svcErr)
	assert.Equal(suite.T(), application.ErrCodeInvalidInput, svcErr.Code)
}
