package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
)

const notifyTimeout = 10 * time.Second

// ComputeHash derives a stable key from any value, used for idempotency keys
// sent to the payment application service.
func ComputeHash(v interface{}) string {
	data := fmt.Sprintf("%+v", v)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// notify sends the event in the background. Failures are logged and dropped.
func notify(logger *slog.Logger, n application.Notifier, borrowerRef string, event application.NotificationEvent) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.Notify(ctx, borrowerRef, event); err != nil {
			logger.Warn("notification failed",
				"event", event.Type,
				"subject_id", event.SubjectID,
				"error", err)
		}
	}()
}

const maxPageLimit = 500

func pageLimit(limit int) int {
	if limit <= 0 || limit > maxPageLimit {
		return 100
	}
	return limit
}
