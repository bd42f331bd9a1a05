package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest"
)

type createSuspenseRequest struct {
	AmountCents     int64      `json:"amount_cents" validate:"gt=0"`
	ReceivedAt      *time.Time `json:"received_at"`
	Method          string     `json:"method" validate:"omitempty,oneof=ACH WIRE CARD CHECK"`
	ReferenceNumber string     `json:"reference_number"`
	AccountNumber   string     `json:"account_number"`
	RoutingNumber   string     `json:"routing_number"`
	CustomerName    string     `json:"customer_name"`
	CustomerEmail   string     `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone   string     `json:"customer_phone"`
	Source          string     `json:"source"`
	ReasonCode      string     `json:"reason_code"`
}

type applyMatchRequest struct {
	LoanID     string             `json:"loan_id" validate:"required"`
	AppliedBy  string             `json:"applied_by" validate:"required"`
	Allocation *domain.Allocation `json:"allocation"`
}

type rejectRequest struct {
	By     string `json:"by" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type refundRequest struct {
	By string `json:"by" validate:"required"`
}

type noteRequest struct {
	Author string `json:"author" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

type assignRequest struct {
	Handler string `json:"handler" validate:"required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handlers) writeSuspense(w http.ResponseWriter, status int, p *domain.SuspensePayment) {
	rest.WriteJSON(w, status, rest.ToAPISuspensePayment(p, h.now()))
}

func (h *Handlers) CreateSuspense(w http.ResponseWriter, r *http.Request) {
	var req createSuspenseRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	cmd := services.CreateSuspenseCommand{
		AmountCents:     req.AmountCents,
		Method:          domain.PaymentMethod(req.Method),
		ReferenceNumber: req.ReferenceNumber,
		AccountNumber:   req.AccountNumber,
		RoutingNumber:   req.RoutingNumber,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Source:          req.Source,
		ReasonCode:      req.ReasonCode,
	}
	if req.ReceivedAt != nil {
		cmd.ReceivedAt = *req.ReceivedAt
	}

	p, err := h.reconciliationService.Create(r.Context(), cmd)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusCreated, p)
}

// ListSuspense serves the research queue. Sorting defaults to newest first.
func (h *Handlers) ListSuspense(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := services.SuspenseQuery{
		Status:     domain.SuspenseStatus(q.Get("status")),
		ReasonCode: q.Get("reason"),
		AgeBucket:  q.Get("age"),
		Search:     q.Get("q"),
		SortBy:     q.Get("sort"),
		Ascending:  strings.EqualFold(q.Get("order"), "asc"),
	}
	payments, err := h.reconciliationService.List(r.Context(), query)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPISuspensePayments(payments, h.now()))
}

func (h *Handlers) GetSuspense(w http.ResponseWriter, r *http.Request) {
	p, err := h.reconciliationService.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusOK, p)
}

func (h *Handlers) RefreshMatches(w http.ResponseWriter, r *http.Request) {
	p, err := h.reconciliationService.RefreshMatches(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusOK, p)
}

func (h *Handlers) ApplyMatch(w http.ResponseWriter, r *http.Request) {
	var req applyMatchRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.reconciliationService.ApplyMatch(r.Context(), pathID(r), services.ApplyMatchCommand{
		LoanID:     req.LoanID,
		AppliedBy:  req.AppliedBy,
		Allocation: req.Allocation,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusOK, p)
}

func (h *Handlers) RejectSuspense(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.reconciliationService.Reject(r.Context(), pathID(r), req.By, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusOK, p)
}

func (h *Handlers) RefundSuspense(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.reconciliationService.MarkRefunded(r.Context(), pathID(r), req.By)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusOK, p)
}

func (h *Handlers) AddSuspenseNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.reconciliationService.AddNote(r.Context(), pathID(r), req.Author, req.Text)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusOK, p)
}

func (h *Handlers) AssignSuspense(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.reconciliationService.Assign(r.Context(), pathID(r), req.Handler)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusOK, p)
}

func (h *Handlers) SetSuspenseStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.reconciliationService.SetStatus(r.Context(), pathID(r), domain.SuspenseStatus(req.Status))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeSuspense(w, http.StatusOK, p)
}
