package policyfile

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	policies, err := Load(strings.NewReader(`
policies:
  - id: ach-nsf
    name: ACH insufficient funds
    intervals: [3d, 168h]
    max_attempts: 3
    payment_methods: [ACH]
    failure_reasons: [insufficient_funds]
    initial_delay: 30m
`))
	require.NoError(t, err)
	require.Len(t, policies, 1)

	p := policies[0]
	assert.Equal(t, []time.Duration{72 * time.Hour, 168 * time.Hour}, p.Intervals)
	assert.Equal(t, 30*time.Minute, p.InitialDelay)
	assert.Equal(t, 1.0, p.BackoffMultiplier)
	assert.True(t, p.Enabled)
	assert.True(t, p.StopOnSuccess)
	assert.True(t, p.EscalateAfterMaxRetries)
	assert.True(t, p.AppliesTo(domain.MethodACH, domain.ReasonInsufficientFunds))
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown method",
			yaml: "policies:\n  - {id: a, name: A, payment_methods: [BITCOIN], failure_reasons: [TIMEOUT]}\n",
			want: "invalid policy file",
		},
		{
			name: "missing id",
			yaml: "policies:\n  - {name: A}\n",
			want: "invalid policy file",
		},
		{
			name: "bad duration",
			yaml: "policies:\n  - {id: a, name: A, intervals: [soon], max_attempts: 1}\n",
			want: `invalid duration "soon"`,
		},
		{
			name: "fewer attempts than intervals",
			yaml: "policies:\n  - {id: a, name: A, intervals: [1h, 2h], max_attempts: 1}\n",
			want: "max attempts",
		},
		{
			name: "duplicate id",
			yaml: "policies:\n  - {id: a, name: A}\n  - {id: a, name: B}\n",
			want: "duplicate id",
		},
		{
			name: "unknown field",
			yaml: "policies:\n  - {id: a, name: A, retries: 3}\n",
			want: "invalid policy yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EmptyDocument(t *testing.T) {
	policies, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestLoadFile_ShippedPolicies(t *testing.T) {
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	path := filepath.Join(filepath.Dir(file), "..", "..", "..", "configs", "policies.yaml")

	policies, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, policies, 4)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, d)

	d, err = ParseDuration(" 90m ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseDuration("xd")
	assert.Error(t, err)
}

func TestFromDomain_RendersDaysAndConvertsBack(t *testing.T) {
	policy := &domain.RetryPolicy{
		ID:                "ach-nsf",
		Name:              "ACH insufficient funds",
		Enabled:           true,
		Intervals:         []time.Duration{72 * time.Hour, 90 * time.Minute},
		MaxAttempts:       3,
		BackoffMultiplier: 1.5,
		StopOnSuccess:     true,
		PaymentMethods:    []domain.PaymentMethod{domain.MethodACH},
		FailureReasons:    []domain.FailureReason{domain.ReasonInsufficientFunds},
		InitialDelay:      15 * time.Minute,
	}

	wire := FromDomain(policy)
	assert.Equal(t, []string{"3d", "1h30m0s"}, wire.Intervals)
	assert.Equal(t, "15m0s", wire.InitialDelay)
	require.NotNil(t, wire.EscalateAfterMaxRetries)
	assert.False(t, *wire.EscalateAfterMaxRetries)

	back, err := wire.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, policy, back)
}
