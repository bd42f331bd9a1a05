package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

const envPrefix = "RECOVERY_"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Primary    Primary         `koanf:"primary"`
	Server     ServerConfig    `koanf:"server"`
	Storage    StorageConfig   `koanf:"storage"`
	Database   DatabaseConfig  `koanf:"database" validate:"-"`
	Directory  DirectoryConfig `koanf:"directory"`
	Servicing  ServicingConfig `koanf:"servicing"`
	Retry      RetryConfig     `koanf:"retry"`
	Scheduler  WorkerConfig    `koanf:"scheduler"`
	Reconciler WorkerConfig    `koanf:"reconciler"`
	Matching   MatchingConfig  `koanf:"matching"`
	Batch      BatchConfig     `koanf:"batch"`
	Policies   PoliciesConfig  `koanf:"policies"`
	Logger     LoggerConfig    `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
	// ValidateRequests checks requests against the embedded OpenAPI document.
	ValidateRequests bool `koanf:"validate_requests"`
}

type StorageConfig struct {
	Driver string `koanf:"driver" validate:"required,oneof=memory postgres"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

// DirectoryConfig points at the SQLite loan directory. An empty path runs
// without a directory: batch rows skip the loan lookup and suspense payments
// get no candidates.
type DirectoryConfig struct {
	Path       string `koanf:"path"`
	MaxResults int    `koanf:"max_results" validate:"gte=0"`
}

type ServicingConfig struct {
	BaseURL    string        `koanf:"base_url" validate:"required,url"`
	Timeout    time.Duration `koanf:"timeout" validate:"required"`
	WebhookURL string        `koanf:"webhook_url" validate:"omitempty,url"`
}

// RetryConfig controls client-level retries of servicing calls. It is
// unrelated to retry policies for failed payments.
type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxRetries int           `koanf:"max_retries" validate:"gte=1"`
}

type WorkerConfig struct {
	Interval  time.Duration `koanf:"interval" validate:"required"`
	BatchSize int           `koanf:"batch_size" validate:"required"`
	// StaleAfter is how long an attempt may sit in PROCESSING before the
	// scheduler resubmits it. Zero disables the sweep.
	StaleAfter time.Duration `koanf:"stale_after" validate:"gte=0"`
}

type MatchingConfig struct {
	ExactAmount     int     `koanf:"exact_amount" validate:"gte=0"`
	AmountRange     int     `koanf:"amount_range" validate:"gte=0"`
	NameExact       int     `koanf:"name_exact" validate:"gte=0"`
	NamePartial     int     `koanf:"name_partial" validate:"gte=0"`
	Contact         int     `koanf:"contact" validate:"gte=0"`
	AccountPartial  int     `koanf:"account_partial" validate:"gte=0"`
	RoutingMatch    int     `koanf:"routing_match" validate:"gte=0"`
	AmountTolerance float64 `koanf:"amount_tolerance" validate:"gte=0,lte=1"`
}

func (c MatchingConfig) Weights() domain.ScoringWeights {
	return domain.ScoringWeights{
		ExactAmount:     c.ExactAmount,
		AmountRange:     c.AmountRange,
		NameExact:       c.NameExact,
		NamePartial:     c.NamePartial,
		Contact:         c.Contact,
		AccountPartial:  c.AccountPartial,
		RoutingMatch:    c.RoutingMatch,
		AmountTolerance: c.AmountTolerance,
	}
}

type BatchConfig struct {
	Workers              int   `koanf:"workers" validate:"gte=1"`
	MaxRecordAmountCents int64 `koanf:"max_record_amount_cents" validate:"gte=0"`
	RejectDuplicates     bool  `koanf:"reject_duplicates"`
}

type PoliciesConfig struct {
	File string `koanf:"file"`
}

type LoggerConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json text"`
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c LoggerConfig) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func defaults() map[string]any {
	w := domain.DefaultScoringWeights()
	return map[string]any{
		"primary.env":                   "development",
		"server.port":                   "8080",
		"server.read_timeout":           "15s",
		"server.write_timeout":          "30s",
		"server.idle_timeout":           "60s",
		"server.validate_requests":      true,
		"storage.driver":                StorageMemory,
		"database.ssl_mode":             "disable",
		"database.max_open_conns":       10,
		"database.max_idle_conns":       2,
		"database.conn_max_lifetime":    "1h",
		"database.conn_max_idle_time":   "30m",
		"directory.max_results":         50,
		"servicing.timeout":             "10s",
		"retry.base_delay":              "1s",
		"retry.max_retries":             3,
		"scheduler.interval":            "30s",
		"scheduler.batch_size":          100,
		"scheduler.stale_after":         "15m",
		"reconciler.interval":           "15m",
		"reconciler.batch_size":         200,
		"matching.exact_amount":         w.ExactAmount,
		"matching.amount_range":         w.AmountRange,
		"matching.name_exact":           w.NameExact,
		"matching.name_partial":         w.NamePartial,
		"matching.contact":              w.Contact,
		"matching.account_partial":      w.AccountPartial,
		"matching.routing_match":        w.RoutingMatch,
		"matching.amount_tolerance":     w.AmountTolerance,
		"batch.workers":                 4,
		"batch.max_record_amount_cents": int64(100_000_000),
		"logger.level":                  "info",
		"logger.format":                 "json",
	}
}

// LoadConfig reads RECOVERY_* environment variables over built-in defaults.
// A double underscore nests: RECOVERY_DATABASE__HOST sets database.host.
func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		logger.Error("failed to load defaults", "error", err)
		return nil, err
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}
	if mainConfig.Storage.Driver == StoragePostgres {
		if err := validate.Struct(&mainConfig.Database); err != nil {
			logger.Error("database config validation failed", "error", err)
			return nil, fmt.Errorf("storage driver postgres: %w", err)
		}
	}

	return mainConfig, nil
}
