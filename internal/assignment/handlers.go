package assignment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jshmir7070-sys/helpme-core/internal/lock"
	"github.com/jshmir7070-sys/helpme-core/internal/middleware"
	orderpkg "github.com/jshmir7070-sys/helpme-core/internal/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/assignment"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type applyReq struct {
	Message         string     `json:"message"`
	ExpectedArrival *time.Time `json:"expected_arrival"`
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	number := chi.URLParam(r, "number")

	var req applyReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	app, err := h.svc.Apply(r.Context(), number, actor.ID, req.Message, req.ExpectedArrival)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(app)
}

func (h *Handler) BulkAssign(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	res, err := h.svc.BulkAssign(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

type directAssignReq struct {
	HelperIDs []int64 `json:"helper_ids"`
}

func (h *Handler) DirectAssign(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	var req directAssignReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	res, err := h.svc.DirectAssign(r.Context(), number, req.HelperIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	status := assignment.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = assignment.StatusApplied
	}
	if !status.IsValid() {
		http.Error(w, "unknown application status", http.StatusUnprocessableEntity)
		return
	}
	apps, err := h.svc.ListApplications(r.Context(), number, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(apps) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apps)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	helperID, err := strconv.ParseInt(chi.URLParam(r, "helperID"), 10, 64)
	if err != nil {
		http.Error(w, "malformed helper id", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Remove(r.Context(), number, helperID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, orderpkg.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrCapacityExceeded), errors.Is(err, ErrAlreadyAssigned):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidState), errors.Is(err, orderpkg.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lock.ErrTimeout):
		http.Error(w, "order is busy, retry", http.StatusConflict)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
