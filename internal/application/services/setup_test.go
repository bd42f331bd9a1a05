package services_test

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

const (
	day     = 24 * time.Hour
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// testClock is a settable time source shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nsfPolicy() *domain.RetryPolicy {
	return &domain.RetryPolicy{
		ID:                      "nsf-ach",
		Name:                    "NSF on ACH",
		Enabled:                 true,
		Intervals:               []time.Duration{3 * day, 7 * day, 14 * day},
		MaxAttempts:             3,
		BackoffMultiplier:       1.5,
		StopOnSuccess:           true,
		EscalateAfterMaxRetries: true,
		PaymentMethods:          []domain.PaymentMethod{domain.MethodACH},
		FailureReasons:          []domain.FailureReason{domain.ReasonInsufficientFunds},
	}
}
