package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
)

// maxBodyBytes caps JSON request bodies. Batch uploads are read separately.
const maxBodyBytes = 1 << 20

var validate = validator.New()

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data})
}

// DecodeJSON reads a JSON body into dst and validates its struct tags. An
// empty body leaves dst untouched before validation.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return application.NewInvalidInputError(fmt.Errorf("decode request body: %w", err))
	}
	if err := validate.Struct(dst); err != nil {
		return application.NewInvalidInputError(err)
	}
	return nil
}
