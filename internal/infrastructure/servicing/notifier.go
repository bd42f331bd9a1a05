package servicing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/config"
)

// WebhookNotifier posts borrower events to the servicing platform's webhook.
// With no webhook configured it only logs.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhookNotifier(cfg config.ServicingConfig, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:        cfg.WebhookURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, borrowerRef string, event application.NotificationEvent) error {
	if n.url == "" {
		n.logger.Debug("notification skipped, no webhook configured",
			"event", event.Type,
			"subject_id", event.SubjectID)
		return nil
	}

	body, err := json.Marshal(webhookPayload{BorrowerRef: borrowerRef, Event: event})
	if err != nil {
		return fmt.Errorf("error marshalling event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error delivering %s: %w", event.Type, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &application.UpstreamError{
			Code:       "webhook_rejected",
			Message:    fmt.Sprintf("webhook rejected %s", event.Type),
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

var _ application.Notifier = (*WebhookNotifier)(nil)
