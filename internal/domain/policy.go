package domain

import (
	"math"
	"slices"
	"time"
)

// DefaultRetryInterval is used when an attempt's policy can no longer be found.
const DefaultRetryInterval = 7 * 24 * time.Hour

// RetryPolicy describes how a failed payment is retried.
type RetryPolicy struct {
	ID                      string
	Name                    string
	Enabled                 bool
	Intervals               []time.Duration
	MaxAttempts             int
	BackoffMultiplier       float64
	StopOnSuccess           bool
	EscalateAfterMaxRetries bool
	PaymentMethods          []PaymentMethod
	FailureReasons          []FailureReason
	InitialDelay            time.Duration
	Priority                int
	UpdatedAt               time.Time
}

// Validate enforces the structural invariants of a policy.
func (p *RetryPolicy) Validate() error {
	if p.ID == "" {
		return NewMissingRequiredFieldError("policy id")
	}
	if p.MaxAttempts < 0 {
		return NewInvalidPolicyError("max attempts cannot be negative")
	}
	if p.MaxAttempts < len(p.Intervals) {
		return NewInvalidPolicyError("max attempts must be at least the number of intervals")
	}
	for _, d := range p.Intervals {
		if d < 0 {
			return NewInvalidPolicyError("intervals must be non-negative")
		}
	}
	if p.InitialDelay < 0 {
		return NewInvalidPolicyError("initial delay must be non-negative")
	}
	if p.BackoffMultiplier < 1 {
		return NewInvalidPolicyError("backoff multiplier must be at least 1")
	}
	return nil
}

// Selectable reports whether the policy can ever be picked for a failure.
func (p *RetryPolicy) Selectable() bool {
	return p.Enabled && len(p.PaymentMethods) > 0 && len(p.FailureReasons) > 0
}

// AppliesTo reports whether the policy covers the method/reason pair.
func (p *RetryPolicy) AppliesTo(method PaymentMethod, reason FailureReason) bool {
	return p.Selectable() &&
		slices.Contains(p.PaymentMethods, method) &&
		slices.Contains(p.FailureReasons, reason)
}

// Interval returns the wait after attempt n (1-based) fails. For n within the
// explicit sequence it is Intervals[n-1]; beyond it the last interval is
// multiplied by BackoffMultiplier^(n-k).
func (p *RetryPolicy) Interval(n int) time.Duration {
	k := len(p.Intervals)
	if k == 0 {
		return DefaultRetryInterval
	}
	if n < 1 {
		n = 1
	}
	if n <= k {
		return p.Intervals[n-1]
	}
	last := float64(p.Intervals[k-1])
	scaled := last * math.Pow(p.BackoffMultiplier, float64(n-k))
	if scaled >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(scaled)
}

// SelectPolicy picks the applicable policy with the lowest priority value,
// breaking ties by id. It returns nil when nothing applies.
func SelectPolicy(policies []*RetryPolicy, method PaymentMethod, reason FailureReason) *RetryPolicy {
	var best *RetryPolicy
	for _, p := range policies {
		if !p.AppliesTo(method, reason) {
			continue
		}
		if best == nil || p.Priority < best.Priority || (p.Priority == best.Priority && p.ID < best.ID) {
			best = p
		}
	}
	return best
}
