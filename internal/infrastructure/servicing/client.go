package servicing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/config"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// Client calls the loan servicing platform: payment application and the
// allocation engine.
type Client interface {
	application.PaymentApplier
	application.AllocationService
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.ServicingConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Submit applies a payment to a loan. The idempotency key makes a repeated
// submission of the same attempt safe.
func (c *HTTPClient) Submit(ctx context.Context, req application.PaymentSubmission) (*application.PaymentReceipt, error) {
	endpoint := fmt.Sprintf("%s/api/v1/payments", c.baseURL)
	return sendRequest[application.PaymentSubmission, application.PaymentReceipt](c, ctx, http.MethodPost, endpoint, &req, req.IdempotencyKey)
}

func (c *HTTPClient) ComputeAllocation(ctx context.Context, loanID string, amountCents int64) (domain.Allocation, error) {
	endpoint := fmt.Sprintf("%s/api/v1/loans/%s/allocations", c.baseURL, url.PathEscape(loanID))
	resp, err := sendRequest[allocationRequest, allocationResponse](c, ctx, http.MethodPost, endpoint, &allocationRequest{AmountCents: amountCents}, "")
	if err != nil {
		return domain.Allocation{}, err
	}
	return resp.Allocation, nil
}

func sendRequest[Req any, Resp any](c *HTTPClient, ctx context.Context, method, endpoint string, reqBody *Req, idempotencyKey string) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, &application.UpstreamError{
				Code:       http.StatusText(resp.StatusCode),
				Message:    strings.TrimSpace(string(body)),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, toError(resp.StatusCode, errResp)
	}

	var out Resp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &out, nil
}
