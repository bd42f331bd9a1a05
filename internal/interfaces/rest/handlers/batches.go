package handlers

import (
	"fmt"
	"net/http"

	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest"
)

const maxBatchBytes = 32 << 20

func batchFileName(r *http.Request) string {
	if name := r.URL.Query().Get("file_name"); name != "" {
		return name
	}
	return "upload.csv"
}

// UploadBatch stores a CSV file of payments after validating every row.
func (h *Handlers) UploadBatch(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBatchBytes)
	batch, err := h.batchService.Upload(r.Context(), batchFileName(r), body)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, rest.ToAPIBatch(batch, true))
}

// ValidateBatch runs validation without storing anything.
func (h *Handlers) ValidateBatch(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBatchBytes)
	batch, err := h.batchService.Validate(r.Context(), batchFileName(r), body)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIBatch(batch, true))
}

func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	batches, err := h.batchService.List(r.Context(), p.limit, p.offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIBatches(batches))
}

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batchService.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIBatch(batch, true))
}

func (h *Handlers) StartBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batchService.Start(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusAccepted, rest.ToAPIBatch(batch, false))
}

func (h *Handlers) PauseBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batchService.Pause(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIBatch(batch, false))
}

func (h *Handlers) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batchService.Resume(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusAccepted, rest.ToAPIBatch(batch, false))
}

func (h *Handlers) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batchService.Cancel(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToAPIBatch(batch, false))
}

// ExportBatch streams per-record results as CSV. The batch is loaded first so
// a missing batch still gets a JSON error.
func (h *Handlers) ExportBatch(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if _, err := h.batchService.Get(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch-"+id+"-results.csv"))
	if err := h.batchService.Export(r.Context(), id, w); err != nil {
		h.logger.Error("batch export failed", "batch_id", id, "error", err)
	}
}
