package handlers

import (
	"net/http"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest"
)

type agentActionRequest struct {
	Agent string `json:"agent" validate:"required"`
	Note  string `json:"note"`
}

type manualRetryRequest struct {
	Agent string     `json:"agent" validate:"required"`
	At    *time.Time `json:"at"`
}

type manualRetryResponse struct {
	FailureEntry *rest.FailureEntry `json:"failure_entry"`
	Attempt      *rest.Attempt      `json:"attempt"`
}

func (h *Handlers) ListFailures(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	escalated, err := boolParam(r, "escalated")
	if err != nil {
		h.fail(w, err)
		return
	}

	entries, err := h.failureQueueService.List(r.Context(), application.FailureFilter{
		Status:    domain.FailureStatus(r.URL.Query().Get("status")),
		Escalated: escalated,
		Limit:     p.limit,
		Offset:    p.offset,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIFailureEntries(entries))
}

func (h *Handlers) GetFailure(w http.ResponseWriter, r *http.Request) {
	entry, err := h.failureQueueService.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIFailureEntry(entry))
}

type entryAction func(r *http.Request, id, agent, note string) (*domain.FailureQueueEntry, error)

func (h *Handlers) agentAction(action entryAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req agentActionRequest
		if err := rest.DecodeJSON(r, &req); err != nil {
			h.fail(w, err)
			return
		}
		entry, err := action(r, pathID(r), req.Agent, req.Note)
		if err != nil {
			h.fail(w, err)
			return
		}
		rest.WriteJSON(w, http.StatusOK, rest.ToAPIFailureEntry(entry))
	}
}

func (h *Handlers) RecordContact(w http.ResponseWriter, r *http.Request) {
	h.agentAction(func(r *http.Request, id, agent, note string) (*domain.FailureQueueEntry, error) {
		return h.failureQueueService.RecordContact(r.Context(), id, agent, note)
	})(w, r)
}

func (h *Handlers) AddFailureNote(w http.ResponseWriter, r *http.Request) {
	h.agentAction(func(r *http.Request, id, agent, note string) (*domain.FailureQueueEntry, error) {
		return h.failureQueueService.AddNote(r.Context(), id, agent, note)
	})(w, r)
}

func (h *Handlers) ResolveFailure(w http.ResponseWriter, r *http.Request) {
	h.agentAction(func(r *http.Request, id, agent, note string) (*domain.FailureQueueEntry, error) {
		return h.failureQueueService.Resolve(r.Context(), id, agent, note)
	})(w, r)
}

func (h *Handlers) CancelFailure(w http.ResponseWriter, r *http.Request) {
	h.agentAction(func(r *http.Request, id, agent, note string) (*domain.FailureQueueEntry, error) {
		return h.failureQueueService.Cancel(r.Context(), id, agent, note)
	})(w, r)
}

// ManualRetry starts a new attempt chain for an escalated entry.
func (h *Handlers) ManualRetry(w http.ResponseWriter, r *http.Request) {
	var req manualRetryRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	entry, attempt, err := h.failureQueueService.ManualRetry(r.Context(), pathID(r), req.Agent, req.At)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, manualRetryResponse{
		FailureEntry: rest.ToAPIFailureEntry(entry),
		Attempt:      rest.ToAPIAttempt(attempt),
	})
}
