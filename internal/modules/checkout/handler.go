package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tmkandawire/shopa-backend/internal/modules/order"
)

// Handler exposes the fulfillment workflow over HTTP. Identity headers are
// populated by the upstream auth proxy; this layer trusts them.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Post("/{orderId}/cancel", h.cancelOrder)
		r.Post("/cart/bulk", h.bulkUpdateCart)
		r.Post("/reorder/{orderId}", h.reorder)
	})
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get("X-User-ID")
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	o, err := h.service.PlaceOrder(r.Context(), req)
	if err != nil {
		var invalid *CartInvalidError
		switch {
		case errors.Is(err, ErrEmptyCart):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &invalid):
			respond(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "cart failed validation",
				"issues": invalid.Issues,
			})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	respond(w, http.StatusCreated, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	admin := r.Header.Get("X-User-Role") == "admin"
	o, err := h.service.CancelOrder(r.Context(), chi.URLParam(r, "orderId"), userID, admin)
	if err != nil {
		var invalid *order.InvalidTransitionError
		switch {
		case errors.Is(err, ErrOrderNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrNotOwner):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.As(err, &invalid):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) bulkUpdateCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string       `json:"userId"`
		Updates []ItemUpdate `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get("X-User-ID")
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	result, err := h.service.BulkUpdateCart(r.Context(), req.UserID, req.Updates)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, result)
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}
	result, err := h.service.Reorder(r.Context(), chi.URLParam(r, "orderId"), userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrNotOwner):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	respond(w, http.StatusOK, result)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
