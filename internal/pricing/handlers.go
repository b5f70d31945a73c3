package pricing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jshmir7070-sys/helpme-core/internal/types/policy"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListRefundPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.svc.ListRefundPolicies(r.Context())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(policies)
}

func (h *Handler) UpdateRefundPolicy(w http.ResponseWriter, r *http.Request) {
	var p policy.RefundPolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.svc.UpdateRefundPolicy(r.Context(), &p); err != nil {
		if errors.Is(err, ErrValidation) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

func (h *Handler) ListPricingPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.svc.ListPricingPolicies(r.Context())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if len(policies) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(policies)
}
