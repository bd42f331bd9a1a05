package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
)

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// WriteError maps application errors to HTTP responses. Server-side failures
// are logged; client errors are not.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	statusCode := application.ToHTTPStatus(err)
	errorCode := application.ToErrorCode(err)

	if statusCode >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			"code", errorCode,
			"category", application.CategorizeError(err),
			"error", err)
	}

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:     errorCode,
			Message:  err.Error(),
			Category: string(application.CategorizeError(err)),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
