// Package policyfile reads the retry policy registry seed from YAML.
package policyfile

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

type File struct {
	Policies []Policy `yaml:"policies" validate:"dive"`
}

// Policy is the wire form of a retry policy, shared by the seed file and the
// HTTP API. Durations accept Go syntax ("72h") and whole days ("3d").
type Policy struct {
	ID                      string   `yaml:"id" json:"id" validate:"required"`
	Name                    string   `yaml:"name" json:"name" validate:"required"`
	Enabled                 *bool    `yaml:"enabled" json:"enabled,omitempty"`
	Intervals               []string `yaml:"intervals" json:"intervals"`
	MaxAttempts             int      `yaml:"max_attempts" json:"max_attempts" validate:"gte=0"`
	BackoffMultiplier       float64  `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	StopOnSuccess           *bool    `yaml:"stop_on_success" json:"stop_on_success,omitempty"`
	EscalateAfterMaxRetries *bool    `yaml:"escalate_after_max_retries" json:"escalate_after_max_retries,omitempty"`
	PaymentMethods          []string `yaml:"payment_methods" json:"payment_methods" validate:"dive,oneof=ACH WIRE CARD CHECK"`
	FailureReasons          []string `yaml:"failure_reasons" json:"failure_reasons" validate:"dive,required"`
	InitialDelay            string   `yaml:"initial_delay" json:"initial_delay,omitempty"`
	Priority                int      `yaml:"priority" json:"priority"`
	UpdatedAt               string   `yaml:"-" json:"updated_at,omitempty"`
}

// LoadFile reads and validates the policies in path.
func LoadFile(path string) ([]*domain.RetryPolicy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy file: %w", err)
	}
	defer f.Close()

	policies, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return policies, nil
}

func Load(r io.Reader) ([]*domain.RetryPolicy, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid policy yaml: %w", err)
	}
	if err := validator.New().Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid policy file: %w", err)
	}

	seen := make(map[string]bool, len(file.Policies))
	out := make([]*domain.RetryPolicy, 0, len(file.Policies))
	for i, p := range file.Policies {
		if seen[p.ID] {
			return nil, fmt.Errorf("policy %d: duplicate id %q", i+1, p.ID)
		}
		seen[p.ID] = true

		policy, err := p.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.ID, err)
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.ID, err)
		}
		out = append(out, policy)
	}
	return out, nil
}

// Validate checks the struct tags only; domain rules are checked on the
// converted policy.
func (p Policy) Validate() error {
	return validator.New().Struct(&p)
}

// ToDomain converts the wire form, applying defaults for omitted fields.
func (p Policy) ToDomain() (*domain.RetryPolicy, error) {
	intervals := make([]time.Duration, 0, len(p.Intervals))
	for _, s := range p.Intervals {
		d, err := ParseDuration(s)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, d)
	}

	var initial time.Duration
	if p.InitialDelay != "" {
		d, err := ParseDuration(p.InitialDelay)
		if err != nil {
			return nil, err
		}
		initial = d
	}

	multiplier := p.BackoffMultiplier
	if multiplier == 0 {
		multiplier = 1
	}

	methods := make([]domain.PaymentMethod, 0, len(p.PaymentMethods))
	for _, m := range p.PaymentMethods {
		methods = append(methods, domain.PaymentMethod(m))
	}
	reasons := make([]domain.FailureReason, 0, len(p.FailureReasons))
	for _, r := range p.FailureReasons {
		reasons = append(reasons, domain.FailureReason(strings.ToUpper(r)))
	}

	return &domain.RetryPolicy{
		ID:                      p.ID,
		Name:                    p.Name,
		Enabled:                 boolOr(p.Enabled, true),
		Intervals:               intervals,
		MaxAttempts:             p.MaxAttempts,
		BackoffMultiplier:       multiplier,
		StopOnSuccess:           boolOr(p.StopOnSuccess, true),
		EscalateAfterMaxRetries: boolOr(p.EscalateAfterMaxRetries, true),
		PaymentMethods:          methods,
		FailureReasons:          reasons,
		InitialDelay:            initial,
		Priority:                p.Priority,
	}, nil
}

// FromDomain renders a policy in wire form.
func FromDomain(p *domain.RetryPolicy) Policy {
	intervals := make([]string, 0, len(p.Intervals))
	for _, d := range p.Intervals {
		intervals = append(intervals, FormatDuration(d))
	}
	methods := make([]string, 0, len(p.PaymentMethods))
	for _, m := range p.PaymentMethods {
		methods = append(methods, string(m))
	}
	reasons := make([]string, 0, len(p.FailureReasons))
	for _, r := range p.FailureReasons {
		reasons = append(reasons, string(r))
	}
	out := Policy{
		ID:                      p.ID,
		Name:                    p.Name,
		Enabled:                 &p.Enabled,
		Intervals:               intervals,
		MaxAttempts:             p.MaxAttempts,
		BackoffMultiplier:       p.BackoffMultiplier,
		StopOnSuccess:           &p.StopOnSuccess,
		EscalateAfterMaxRetries: &p.EscalateAfterMaxRetries,
		PaymentMethods:          methods,
		FailureReasons:          reasons,
		Priority:                p.Priority,
	}
	if p.InitialDelay > 0 {
		out.InitialDelay = FormatDuration(p.InitialDelay)
	}
	if !p.UpdatedAt.IsZero() {
		out.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// FormatDuration is the inverse of ParseDuration: whole days print as "7d".
func FormatDuration(d time.Duration) string {
	const day = 24 * time.Hour
	if d > 0 && d%day == 0 {
		return strconv.FormatInt(int64(d/day), 10) + "d"
	}
	return d.String()
}

// ParseDuration accepts anything time.ParseDuration does plus a whole number
// of days, e.g. "7d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
