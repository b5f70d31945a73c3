package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jshmir7070-sys/helpme-core/internal/lock"
	"github.com/jshmir7070-sys/helpme-core/internal/middleware"
	"github.com/jshmir7070-sys/helpme-core/internal/util/ordernum"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	var in CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	o, err := h.svc.CreateOrder(r.Context(), actor.ID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	orders, err := h.svc.ListOrders(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	o, err := h.svc.GetOrder(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	o, err := h.svc.ApproveDeposit(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	o, err := h.svc.RejectDeposit(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())
	var req cancelReq
	if r.Body != nil {
		// an empty body is a cancellation without a reason
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	res, err := h.svc.Cancel(r.Context(), number, actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func orderNumber(w http.ResponseWriter, r *http.Request) (string, bool) {
	number := chi.URLParam(r, "number")
	if !ordernum.Validate(number) {
		http.Error(w, "malformed order number", http.StatusUnprocessableEntity)
		return "", false
	}
	return number, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lock.ErrTimeout):
		http.Error(w, "order is busy, retry", http.StatusConflict)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
