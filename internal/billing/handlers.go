package billing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jshmir7070-sys/helpme-core/internal/lock"
	"github.com/jshmir7070-sys/helpme-core/internal/middleware"
	orderpkg "github.com/jshmir7070-sys/helpme-core/internal/order"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) SubmitClosing(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	number := chi.URLParam(r, "number")

	var in ClosingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	report, err := h.svc.SubmitClosing(r.Context(), number, actor.ID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(report)
}

func (h *Handler) ApproveClosing(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	o, err := h.svc.ApproveClosing(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) ConfirmBalance(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	o, err := h.svc.ConfirmBalancePaid(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	o, err := h.svc.Settle(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

// PaymentWebhook accepts the provider's payment-confirmed callback.
// Duplicate deliveries respond 200 without a second state change, so the
// provider's retry policy never sees spurious failures.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var p WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	o, err := h.svc.HandleWebhook(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, orderpkg.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotAssigned):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, orderpkg.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lock.ErrTimeout):
		http.Error(w, "order is busy, retry", http.StatusConflict)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
