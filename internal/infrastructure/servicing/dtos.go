package servicing

import (
	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

type allocationRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type allocationResponse struct {
	LoanID     string            `json:"loan_id"`
	Allocation domain.Allocation `json:"allocation"`
}

type webhookPayload struct {
	BorrowerRef string                        `json:"borrower_ref"`
	Event       application.NotificationEvent `json:"event"`
}
