package handlers

import (
	"net/http"
	"time"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest"
)

type registerFailureRequest struct {
	LoanID            string     `json:"loan_id" validate:"required"`
	OriginalPaymentID string     `json:"original_payment_id"`
	BorrowerName      string     `json:"borrower_name"`
	AmountCents       int64      `json:"amount_cents" validate:"gt=0"`
	Method            string     `json:"method" validate:"required,oneof=ACH WIRE CARD CHECK"`
	AccountNumber     string     `json:"account_number"`
	RoutingNumber     string     `json:"routing_number"`
	Reference         string     `json:"reference"`
	FailureReason     string     `json:"failure_reason" validate:"required"`
	FailureCode       string     `json:"failure_code"`
	FailedAt          *time.Time `json:"failed_at"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) RegisterFailure(w http.ResponseWriter, r *http.Request) {
	var req registerFailureRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}

	cmd := services.RegisterFailureCommand{
		LoanID:            req.LoanID,
		OriginalPaymentID: req.OriginalPaymentID,
		BorrowerName:      req.BorrowerName,
		AmountCents:       req.AmountCents,
		Method:            domain.PaymentMethod(req.Method),
		Account: domain.AccountDetails{
			AccountNumber: req.AccountNumber,
			RoutingNumber: req.RoutingNumber,
			Reference:     req.Reference,
		},
		FailureReason: domain.FailureReason(req.FailureReason),
		FailureCode:   req.FailureCode,
	}
	if req.FailedAt != nil {
		cmd.FailedAt = *req.FailedAt
	}

	reg, err := h.retryService.RegisterFailure(r.Context(), cmd)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, rest.ToAPIRegistration(reg))
}

func (h *Handlers) ListAttempts(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	status := domain.AttemptStatus(r.URL.Query().Get("status"))

	attempts, err := h.retryService.List(r.Context(), status, p.limit, p.offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIAttempts(attempts))
}

func (h *Handlers) GetAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.retryService.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIAttempt(attempt))
}

// RetryNow submits a pending attempt immediately instead of waiting for the
// scheduler.
func (h *Handlers) RetryNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.retryService.ProcessNow(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIProcessResult(result))
}

func (h *Handlers) CancelAttempt(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	attempt, err := h.retryService.Cancel(r.Context(), pathID(r), req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIAttempt(attempt))
}
