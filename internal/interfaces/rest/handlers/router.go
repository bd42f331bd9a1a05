package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest/middleware"
)

type RouterConfig struct {
	Timeout          time.Duration
	ValidateRequests bool
}

// NewRouter builds the HTTP API: docs at /openapi.yaml, resources under
// /api/v1, a health check at /healthz.
func NewRouter(ctx context.Context, h *Handlers, cfg RouterConfig, logger *slog.Logger) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))
	if cfg.Timeout > 0 {
		r.Use(middleware.Timeout(cfg.Timeout))
	}

	if cfg.ValidateRequests {
		doc, err := rest.LoadSpec(ctx)
		if err != nil {
			return nil, err
		}
		validator, err := middleware.RequestValidator(doc)
		if err != nil {
			return nil, err
		}
		r.Use(validator)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/openapi.yaml", rest.DocsHandler)
	r.Route("/api/v1", h.Routes)
	return r, nil
}
