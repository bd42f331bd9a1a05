package servicing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/config"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// RetryClient retries transport failures and 5xx responses of the inner
// client. Declines are final and returned on the first try.
type RetryClient struct {
	inner      Client
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryClient(inner Client, cfg config.RetryConfig) *RetryClient {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RetryClient{
		inner:      inner,
		baseDelay:  cfg.BaseDelay,
		maxRetries: maxRetries,
	}
}

// Submit with retry logic. The idempotency key is resent unchanged.
func (r *RetryClient) Submit(ctx context.Context, req application.PaymentSubmission) (*application.PaymentReceipt, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.PaymentReceipt, error) {
			return r.inner.Submit(ctx, req)
		},
	)
}

// ComputeAllocation with retry logic
func (r *RetryClient) ComputeAllocation(ctx context.Context, loanID string, amountCents int64) (domain.Allocation, error) {
	alloc, err := retry(
		r,
		ctx,
		func(ctx context.Context) (*domain.Allocation, error) {
			a, err := r.inner.ComputeAllocation(ctx, loanID, amountCents)
			if err != nil {
				return nil, err
			}
			return &a, nil
		},
	)
	if err != nil {
		return domain.Allocation{}, err
	}
	return *alloc, nil
}

func retry[T any](r *RetryClient, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func isRetryable(err error) bool {
	var declined *application.PaymentFailure
	if errors.As(err, &declined) {
		return false
	}

	if upErr, ok := application.IsUpstreamError(err); ok {
		return upErr.StatusCode >= 500 || upErr.StatusCode == http.StatusTooManyRequests
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

// Backoff calculation with exponential delay and up to 50% jitter
func (r *RetryClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.Int63n(int64(base)/2+1))
}

var _ Client = (*RetryClient)(nil)
