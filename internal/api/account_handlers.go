package api

import (
	"net/http"

	"github.com/example/gas-agency/internal/domain/account"
)

// RegisterStaff creates a staff account. Only callers holding
// manage_accounts reach it.
func (h *Handlers) RegisterStaff(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.accounts.RegisterStaff(r.Context(), account.RegisterInput(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, acc)
}

func (h *Handlers) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.Deactivate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, acc)
}

func (h *Handlers) ActivateAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.Activate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, acc)
}
