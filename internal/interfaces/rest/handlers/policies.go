package handlers

import (
	"fmt"
	"net/http"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/policyfile"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest"
)

func (h *Handlers) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policyService.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]policyfile.Policy, 0, len(policies))
	for _, p := range policies {
		out = append(out, policyfile.FromDomain(p))
	}
	rest.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.policyService.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, policyfile.FromDomain(p))
}

// UpdatePolicy creates or replaces the policy named in the path. The body
// uses the same shape as the policy seed file.
func (h *Handlers) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyfile.Policy
	if err := rest.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.ID != pathID(r) {
		h.fail(w, application.NewInvalidInputError(
			fmt.Errorf("policy id %q does not match path id %q", req.ID, pathID(r))))
		return
	}

	policy, err := req.ToDomain()
	if err != nil {
		h.fail(w, application.NewInvalidInputError(err))
		return
	}
	saved, err := h.policyService.Update(r.Context(), policy)
	if err != nil {
		h.fail(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, policyfile.FromDomain(saved))
}

func (h *Handlers) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.policyService.Delete(r.Context(), pathID(r)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
