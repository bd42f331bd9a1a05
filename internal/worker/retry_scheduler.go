package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
)

const DefaultScanInterval = 30 * time.Second

// DueScanner processes attempts whose retry time has come, and resubmits
// attempts whose claim went stale.
type DueScanner interface {
	ScanDue(ctx context.Context, limit int) (services.ScanResult, error)
	RecoverStale(ctx context.Context, staleAfter time.Duration, limit int) (services.ScanResult, error)
}

// RetryScheduler wakes up on a fixed cadence and hands due attempts to the
// retry service. Scans never overlap: the next tick waits for the current
// scan to finish.
type RetryScheduler struct {
	scanner    DueScanner
	interval   time.Duration
	batchSize  int
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewRetryScheduler(scanner DueScanner, interval time.Duration, batchSize int, logger *slog.Logger) *RetryScheduler {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &RetryScheduler{
		scanner:   scanner,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// WithStaleAfter enables the stale claim sweep that runs before each scan.
func (s *RetryScheduler) WithStaleAfter(d time.Duration) *RetryScheduler {
	s.staleAfter = d
	return s
}

// Start scans once immediately, then on every tick until ctx is done.
func (s *RetryScheduler) Start(ctx context.Context) {
	s.logger.Info("retry scheduler started",
		"interval", s.interval,
		"batch_size", s.batchSize,
		"stale_after", s.staleAfter)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.ScanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry scheduler stopping")
			return
		case <-ticker.C:
			s.ScanOnce(ctx)
		}
	}
}

// ScanOnce sweeps stale claims, then runs a single scan and logs its outcome.
func (s *RetryScheduler) ScanOnce(ctx context.Context) services.ScanResult {
	if s.staleAfter > 0 {
		s.recoverStale(ctx)
	}

	res, err := s.scanner.ScanDue(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("retry scan failed", "error", err)
		return res
	}
	if res.Due > 0 {
		s.logger.Info("retry scan finished",
			"due", res.Due,
			"succeeded", res.Succeeded,
			"retried", res.Retried,
			"escalated", res.Escalated,
			"skipped", res.Skipped,
			"errors", res.Errors)
	}
	return res
}

func (s *RetryScheduler) recoverStale(ctx context.Context) {
	res, err := s.scanner.RecoverStale(ctx, s.staleAfter, s.batchSize)
	if err != nil {
		s.logger.Error("stale claim sweep failed", "error", err)
		return
	}
	if res.Due > 0 {
		s.logger.Warn("stale claims resubmitted",
			"stale", res.Due,
			"succeeded", res.Succeeded,
			"retried", res.Retried,
			"escalated", res.Escalated,
			"skipped", res.Skipped,
			"errors", res.Errors)
	}
}
