package servicing

import (
	"net/http"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// ErrorResponse is the body the servicing platform sends with any non-2xx status.
type ErrorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code,omitempty"`
}

var knownReasons = map[domain.FailureReason]bool{
	domain.ReasonInsufficientFunds: true,
	domain.ReasonAccountClosed:     true,
	domain.ReasonCardExpired:       true,
	domain.ReasonCardDeclined:      true,
	domain.ReasonInvalidAccount:    true,
	domain.ReasonStopPayment:       true,
	domain.ReasonNetworkError:      true,
	domain.ReasonTimeout:           true,
	domain.ReasonOther:             true,
}

// toError turns an error response into a decline or an upstream error. A
// decline is a 402 or 422 that names a reason.
func toError(status int, body ErrorResponse) error {
	if (status == http.StatusPaymentRequired || status == http.StatusUnprocessableEntity) && body.Reason != "" {
		reason := domain.FailureReason(body.Reason)
		if !knownReasons[reason] {
			reason = domain.ReasonOther
		}
		return &application.PaymentFailure{
			Reason:  reason,
			Code:    body.Code,
			Message: body.Message,
		}
	}
	code := body.Err
	if code == "" {
		code = http.StatusText(status)
	}
	return &application.UpstreamError{
		Code:       code,
		Message:    body.Message,
		StatusCode: status,
	}
}
