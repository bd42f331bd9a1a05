package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/application/mocks"
	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest/handlers"
)

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type HandlersTestSuite struct {
	suite.Suite
	applier   *mocks.PaymentApplier
	directory *mocks.LoanDirectory
	policies  *memory.PolicyRepository
	batches   *services.BatchService
	server    *httptest.Server
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func (suite *HandlersTestSuite) SetupTest() {
	t := suite.T()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return day0 }

	suite.applier = &mocks.PaymentApplier{}
	suite.directory = &mocks.LoanDirectory{}
	suite.policies = memory.NewPolicyRepository()
	attempts := memory.NewAttemptRepository()
	failures := memory.NewFailureQueueRepository()
	batchRepo := memory.NewBatchRepository()
	notifier := &mocks.RecordingNotifier{}

	policyService := services.NewPolicyService(suite.policies, logger)
	tx := memory.NewTransactionCoordinator(attempts, failures)
	retryService := services.NewRetryService(attempts, failures, tx, policyService, suite.applier, notifier, logger).
		WithClock(clock)
	failureService := services.NewFailureQueueService(failures, attempts, tx, policyService, logger).
		WithClock(clock)
	reconciliation := services.NewReconciliationService(
		memory.NewSuspenseRepository(),
		suite.directory,
		&mocks.AllocationService{},
		suite.applier,
		notifier,
		domain.DefaultScoringWeights(),
		logger,
	).WithClock(clock)
	validator := services.NewBatchValidator(services.DefaultValidationRules(), nil, logger)
	executor := services.NewBatchExecutor(suite.applier, batchRepo, 2, logger)
	suite.batches = services.NewBatchService(batchRepo, validator, executor, notifier, logger).WithClock(clock)

	h := handlers.NewHandlers(retryService, policyService, failureService, reconciliation, suite.batches, logger).
		WithClock(clock)
	router, err := handlers.NewRouter(context.Background(), h, handlers.RouterConfig{
		Timeout:          5 * time.Second,
		ValidateRequests: true,
	}, logger)
	require.NoError(t, err)
	suite.server = httptest.NewServer(router)

	require.NoError(t, suite.policies.Save(context.Background(), &domain.RetryPolicy{
		ID:                      "nsf-ach",
		Name:                    "NSF on ACH",
		Enabled:                 true,
		Intervals:               []time.Duration{72 * time.Hour},
		MaxAttempts:             2,
		BackoffMultiplier:       1,
		StopOnSuccess:           true,
		EscalateAfterMaxRetries: true,
		PaymentMethods:          []domain.PaymentMethod{domain.MethodACH},
		FailureReasons:          []domain.FailureReason{domain.ReasonInsufficientFunds},
	}))
}

func (suite *HandlersTestSuite) TearDownTest() {
	suite.server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = suite.batches.Shutdown(ctx)
}

func (suite *HandlersTestSuite) do(method, path, contentType, body string) (*http.Response, envelope) {
	t := suite.T()
	req, err := http.NewRequest(method, suite.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	} else {
		env.Data = raw
	}
	return resp, env
}

func (suite *HandlersTestSuite) doJSON(method, path string, body any) (*http.Response, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(suite.T(), json.NewEncoder(&buf).Encode(body))
	}
	return suite.do(method, path, "application/json", buf.String())
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type attemptView struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	AttemptNumber int    `json:"attempt_number"`
	Account       string `json:"account"`
	TransactionID string `json:"transaction_id"`
}

type registrationView struct {
	Attempt      *attemptView `json:"attempt"`
	FailureEntry *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"failure_entry"`
}

func registerBody(method, reason string) map[string]any {
	return map[string]any{
		"loan_id":             "LN-100200",
		"original_payment_id": "pay-1",
		"borrower_name":       "Ada Obi",
		"amount_cents":        150000,
		"method":              method,
		"account_number":      "000123456789",
		"routing_number":      "021000021",
		"failure_reason":      reason,
		"failure_code":        "R01",
	}
}

// ============================================================================
// ATTEMPTS
// ============================================================================

func (suite *HandlersTestSuite) Test_RegisterFailure_ThenRetryNow() {
	t := suite.T()
	suite.applier.On("Submit", mock.Anything, mock.Anything).
		Return(&application.PaymentReceipt{TransactionID: "txn-42"}, nil)

	resp, env := suite.doJSON(http.MethodPost, "/api/v1/attempts", registerBody("ACH", "INSUFFICIENT_FUNDS"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decode[registrationView](t, env)
	require.NotNil(t, reg.Attempt)
	assert.Equal(t, "PENDING", reg.Attempt.Status)
	assert.Equal(t, "****6789", reg.Attempt.Account)
	assert.Nil(t, reg.FailureEntry)

	resp, env = suite.doJSON(http.MethodPost, "/api/v1/attempts/"+reg.Attempt.ID+"/process", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[struct {
		Attempt attemptView `json:"attempt"`
	}](t, env)
	assert.Equal(t, "SUCCESS", result.Attempt.Status)
	assert.Equal(t, "txn-42", result.Attempt.TransactionID)

	resp, env = suite.do(http.MethodGet, "/api/v1/attempts?status=SUCCESS&limit=10", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]attemptView](t, env)
	require.Len(t, listed, 1)
	assert.Equal(t, reg.Attempt.ID, listed[0].ID)
}

func (suite *HandlersTestSuite) Test_RegisterFailure_RejectsInvalidBody() {
	t := suite.T()
	body := registerBody("ACH", "INSUFFICIENT_FUNDS")
	delete(body, "loan_id")

	resp, env := suite.doJSON(http.MethodPost, "/api/v1/attempts", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, application.ErrCodeInvalidInput, env.Error.Code)

	body = registerBody("PAYPAL", "INSUFFICIENT_FUNDS")
	resp, _ = suite.doJSON(http.MethodPost, "/api/v1/attempts", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func (suite *HandlersTestSuite) Test_Attempt_NotFoundAndCancel() {
	t := suite.T()

	resp, env := suite.do(http.MethodGet, "/api/v1/attempts/missing", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, application.ErrCodeNotFound, env.Error.Code)

	resp, env = suite.doJSON(http.MethodPost, "/api/v1/attempts", registerBody("ACH", "INSUFFICIENT_FUNDS"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decode[registrationView](t, env)

	resp, env = suite.doJSON(http.MethodPost, "/api/v1/attempts/"+reg.Attempt.ID+"/cancel", map[string]string{"reason": "borrower paid by phone"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", decode[attemptView](t, env).Status)

	resp, _ = suite.doJSON(http.MethodPost, "/api/v1/attempts/"+reg.Attempt.ID+"/process", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// ============================================================================
// POLICIES
// ============================================================================

func (suite *HandlersTestSuite) Test_Policies_Lifecycle() {
	t := suite.T()
	policy := map[string]any{
		"id":              "card-soft",
		"name":            "Card soft decline",
		"intervals":       []string{"1d", "3d"},
		"max_attempts":    3,
		"payment_methods": []string{"CARD"},
		"failure_reasons": []string{"CARD_DECLINED"},
		"priority":        5,
	}

	resp, env := suite.doJSON(http.MethodPut, "/api/v1/policies/card-soft", policy)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(env.Data))
	saved := decode[map[string]any](t, env)
	assert.Equal(t, []any{"1d", "3d"}, saved["intervals"])
	assert.Equal(t, true, saved["enabled"])

	resp, env = suite.do(http.MethodGet, "/api/v1/policies", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]map[string]any](t, env), 2)

	resp, _ = suite.doJSON(http.MethodPut, "/api/v1/policies/other-id", policy)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	policy["max_attempts"] = 1
	resp, _ = suite.doJSON(http.MethodPut, "/api/v1/policies/card-soft", policy)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = suite.do(http.MethodDelete, "/api/v1/policies/card-soft", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = suite.do(http.MethodGet, "/api/v1/policies/card-soft", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ============================================================================
// FAILURE QUEUE
// ============================================================================

func (suite *HandlersTestSuite) Test_Failures_DirectEscalationAndAgentActions() {
	t := suite.T()

	// nothing retries closed accounts, so the failure goes straight to the queue
	resp, env := suite.doJSON(http.MethodPost, "/api/v1/attempts", registerBody("WIRE", "ACCOUNT_CLOSED"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decode[registrationView](t, env)
	assert.Nil(t, reg.Attempt)
	require.NotNil(t, reg.FailureEntry)
	entryID := reg.FailureEntry.ID

	resp, env = suite.do(http.MethodGet, "/api/v1/failures?escalated=true", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]struct {
		ID string `json:"id"`
	}](t, env)
	require.Len(t, entries, 1)
	assert.Equal(t, entryID, entries[0].ID)

	resp, _ = suite.do(http.MethodGet, "/api/v1/failures?escalated=maybe", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = suite.doJSON(http.MethodPost, "/api/v1/failures/"+entryID+"/contact",
		map[string]string{"agent": "agent-7", "note": "left voicemail"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	contacted := decode[struct {
		LastContactAt *time.Time `json:"last_contact_at"`
		Notes         []struct {
			Author string `json:"author"`
		} `json:"notes"`
	}](t, env)
	assert.NotNil(t, contacted.LastContactAt)
	assert.NotEmpty(t, contacted.Notes)

	resp, _ = suite.doJSON(http.MethodPost, "/api/v1/failures/"+entryID+"/contact", map[string]string{"note": "no agent"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = suite.doJSON(http.MethodPost, "/api/v1/failures/"+entryID+"/resolve",
		map[string]string{"agent": "agent-7", "note": "paid at branch"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resolved := decode[struct {
		Status     string `json:"status"`
		ResolvedBy string `json:"resolved_by"`
	}](t, env)
	assert.Equal(t, "RESOLVED", resolved.Status)
	assert.Equal(t, "agent-7", resolved.ResolvedBy)
}

// ============================================================================
// SUSPENSE
// ============================================================================

func (suite *HandlersTestSuite) Test_Suspense_CreateRejectRefund() {
	t := suite.T()
	suite.directory.On("SearchCandidates", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.LoanSummary{{
			LoanID:               "LN-100200",
			BorrowerName:         "Ada Obi",
			ExpectedPaymentCents: 150000,
			NextPaymentDue:       day0.Add(72 * time.Hour),
		}}, nil)

	resp, env := suite.doJSON(http.MethodPost, "/api/v1/suspense", map[string]any{
		"amount_cents":  150000,
		"received_at":   day0.Add(-40 * 24 * time.Hour).Format(time.RFC3339),
		"customer_name": "Ada Obi",
		"source":        "lockbox",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		AgeDays        int    `json:"age_days"`
		BestConfidence int    `json:"best_confidence"`
		Matches        []struct {
			LoanID string `json:"loan_id"`
		} `json:"matches"`
	}](t, env)
	assert.Equal(t, "UNMATCHED", created.Status)
	assert.Equal(t, 40, created.AgeDays)
	require.NotEmpty(t, created.Matches)
	assert.Equal(t, "LN-100200", created.Matches[0].LoanID)
	assert.Positive(t, created.BestConfidence)

	q := url.Values{"age": {"31-60"}, "sort": {"amount"}, "order": {"asc"}}
	resp, env = suite.do(http.MethodGet, "/api/v1/suspense?"+q.Encode(), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]map[string]any](t, env), 1)

	resp, _ = suite.do(http.MethodGet, "/api/v1/suspense?sort=borrower", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = suite.doJSON(http.MethodPost, "/api/v1/suspense/"+created.ID+"/refund", map[string]string{"by": "ops"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = suite.doJSON(http.MethodPost, "/api/v1/suspense/"+created.ID+"/reject",
		map[string]string{"by": "ops", "reason": "no matching borrower"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = suite.doJSON(http.MethodPost, "/api/v1/suspense/"+created.ID+"/refund", map[string]string{"by": "ops"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "REFUNDED", decode[map[string]any](t, env)["status"])
}

// ============================================================================
// BATCHES
// ============================================================================

const batchCSV = "Loan Number,Payment Amount,Payment Date,Payment Method,Account Number,Routing Number\n" +
	"LN-10000,100.50,2026-03-01,ACH,000123450,021000021\n" +
	"LN-10001,101.50,2026-03-01,ACH,000123451,12345\n"

func (suite *HandlersTestSuite) Test_Batches_UploadRunExport() {
	t := suite.T()
	suite.applier.On("Submit", mock.Anything, mock.Anything).
		Return(&application.PaymentReceipt{TransactionID: "txn-batch", PrincipalCents: 10050}, nil)

	resp, env := suite.do(http.MethodPost, "/api/v1/batches?file_name=march.csv", "text/csv", batchCSV)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(env.Data))
	batch := decode[struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		FileName       string `json:"file_name"`
		ValidRecords   int    `json:"valid_records"`
		InvalidRecords int    `json:"invalid_records"`
		Records        []struct {
			Status string   `json:"status"`
			Errors []string `json:"errors"`
		} `json:"records"`
	}](t, env)
	assert.Equal(t, "VALIDATED", batch.Status)
	assert.Equal(t, "march.csv", batch.FileName)
	assert.Equal(t, 1, batch.ValidRecords)
	assert.Equal(t, 1, batch.InvalidRecords)
	require.Len(t, batch.Records, 2)
	assert.NotEmpty(t, batch.Records[1].Errors)

	resp, _ = suite.doJSON(http.MethodPost, "/api/v1/batches/"+batch.ID+"/start", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		b, err := suite.batches.Get(context.Background(), batch.ID)
		return err == nil && b.Status == domain.BatchCompleted
	}, 2*time.Second, 10*time.Millisecond)

	resp, env = suite.do(http.MethodGet, "/api/v1/batches/"+batch.ID+"/export", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(env.Data), "LN-10000")

	resp, _ = suite.do(http.MethodGet, "/api/v1/batches/missing/export", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (suite *HandlersTestSuite) Test_Batches_ValidateDoesNotStore() {
	t := suite.T()

	resp, _ := suite.do(http.MethodPost, "/api/v1/batches/validate", "text/csv", batchCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := suite.do(http.MethodGet, "/api/v1/batches", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]map[string]any](t, env))
}

// ============================================================================
// DOCS
// ============================================================================

func (suite *HandlersTestSuite) Test_Docs_ServesOpenAPIDocument() {
	t := suite.T()

	resp, env := suite.do(http.MethodGet, "/openapi.yaml", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "openapi: 3.0.3")
	assert.Contains(t, string(env.Data), "/api/v1/suspense/{id}/refund")

	resp, _ = suite.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
