package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler exposes order read and status-management endpoints. Placing and
// cancelling orders goes through the checkout workflow, not here.
type Handler struct{ repo Repository }

func NewHandler(repo Repository) *Handler { return &Handler{repo: repo} }

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/attention", h.needingAttention)
		r.Get("/user/{userId}", h.userHistory)
		r.Get("/{id}", h.getOrder)
		r.Put("/{id}/status", h.updateStatus)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, found, err := h.repo.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, found, err := h.repo.UpdateStatus(r.Context(), chi.URLParam(r, "id"), Status(req.Status))
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) userHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := HistoryQuery{
		Status:    Status(q.Get("status")),
		Page:      intParam(q.Get("page"), 1),
		Limit:     intParam(q.Get("limit"), 10),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	if query.Status != "" && !query.Status.Known() {
		http.Error(w, "unknown order status", http.StatusBadRequest)
		return
	}
	page, err := h.repo.UserHistory(r.Context(), chi.URLParam(r, "userId"), query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, page)
}

func (h *Handler) needingAttention(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r.URL.Query().Get("hours"), 24)
	orders, err := h.repo.NeedingAttention(r.Context(), hours)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, orders)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, stats)
}

func intParam(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
