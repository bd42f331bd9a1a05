package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest"
)

// Handlers exposes the recovery services over HTTP.
type Handlers struct {
	retryService          *services.RetryService
	policyService         *services.PolicyService
	failureQueueService   *services.FailureQueueService
	reconciliationService *services.ReconciliationService
	batchService          *services.BatchService
	logger                *slog.Logger
	now                   func() time.Time
}

func NewHandlers(
	retryService *services.RetryService,
	policyService *services.PolicyService,
	failureQueueService *services.FailureQueueService,
	reconciliationService *services.ReconciliationService,
	batchService *services.BatchService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		retryService:          retryService,
		policyService:         policyService,
		failureQueueService:   failureQueueService,
		reconciliationService: reconciliationService,
		batchService:          batchService,
		logger:                logger,
		now:                   time.Now,
	}
}

// WithClock sets the time used for derived fields such as suspense age.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// Routes mounts every resource under r.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/attempts", func(r chi.Router) {
		r.Get("/", h.ListAttempts)
		r.Post("/", h.RegisterFailure)
		r.Get("/{id}", h.GetAttempt)
		r.Post("/{id}/process", h.RetryNow)
		r.Post("/{id}/cancel", h.CancelAttempt)
	})

	r.Route("/policies", func(r chi.Router) {
		r.Get("/", h.ListPolicies)
		r.Get("/{id}", h.GetPolicy)
		r.Put("/{id}", h.UpdatePolicy)
		r.Delete("/{id}", h.DeletePolicy)
	})

	r.Route("/failures", func(r chi.Router) {
		r.Get("/", h.ListFailures)
		r.Get("/{id}", h.GetFailure)
		r.Post("/{id}/contact", h.RecordContact)
		r.Post("/{id}/notes", h.AddFailureNote)
		r.Post("/{id}/retry", h.ManualRetry)
		r.Post("/{id}/resolve", h.ResolveFailure)
		r.Post("/{id}/cancel", h.CancelFailure)
	})

	r.Route("/suspense", func(r chi.Router) {
		r.Get("/", h.ListSuspense)
		r.Post("/", h.CreateSuspense)
		r.Get("/{id}", h.GetSuspense)
		r.Post("/{id}/match", h.RefreshMatches)
		r.Post("/{id}/apply", h.ApplyMatch)
		r.Post("/{id}/reject", h.RejectSuspense)
		r.Post("/{id}/refund", h.RefundSuspense)
		r.Post("/{id}/notes", h.AddSuspenseNote)
		r.Post("/{id}/assign", h.AssignSuspense)
		r.Post("/{id}/status", h.SetSuspenseStatus)
	})

	r.Route("/batches", func(r chi.Router) {
		r.Get("/", h.ListBatches)
		r.Post("/", h.UploadBatch)
		r.Post("/validate", h.ValidateBatch)
		r.Get("/{id}", h.GetBatch)
		r.Post("/{id}/start", h.StartBatch)
		r.Post("/{id}/pause", h.PauseBatch)
		r.Post("/{id}/resume", h.ResumeBatch)
		r.Post("/{id}/cancel", h.CancelBatch)
		r.Get("/{id}/export", h.ExportBatch)
	})
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	rest.WriteError(w, err, h.logger)
}
