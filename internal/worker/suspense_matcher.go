package worker

import (
	"context"
	"log/slog"
	"time"
)

const DefaultRefreshInterval = 15 * time.Minute

// OpenRefresher rescores suspense payments that are still unresolved.
type OpenRefresher interface {
	RefreshOpen(ctx context.Context, limit int) (int, error)
}

// SuspenseMatcher periodically refreshes the candidate loans of open suspense
// payments, so that loans added to the directory later are picked up.
type SuspenseMatcher struct {
	refresher OpenRefresher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewSuspenseMatcher(refresher OpenRefresher, interval time.Duration, batchSize int, logger *slog.Logger) *SuspenseMatcher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &SuspenseMatcher{
		refresher: refresher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (m *SuspenseMatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("starting suspense matcher", "interval", m.interval, "batch_size", m.batchSize)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("stopping suspense matcher")
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single refresh cycle.
func (m *SuspenseMatcher) RunOnce(ctx context.Context) int {
	n, err := m.refresher.RefreshOpen(ctx, m.batchSize)
	if err != nil {
		m.logger.Error("failed to refresh suspense matches", "error", err)
		return n
	}
	if n > 0 {
		m.logger.Info("refreshed suspense matches", "count", n)
	}
	return n
}
