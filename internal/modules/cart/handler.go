package cart

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler exposes cart HTTP endpoints. The product lookup is injected so the
// cart package stays decoupled from the product repository.
type Handler struct {
	repo   Repository
	lookup ProductLookup
}

func NewHandler(repo Repository, lookup ProductLookup) *Handler {
	return &Handler{repo: repo, lookup: lookup}
}

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/carts", func(r chi.Router) {
		r.Get("/abandoned", h.abandoned)
		r.Get("/{userId}", h.getCart)
		r.Delete("/{userId}", h.clearCart)
		r.Get("/{userId}/validate", h.validateCart)
		r.Post("/{userId}/items", h.addItem)
		r.Put("/{userId}/items/{productId}", h.updateItem)
		r.Delete("/{userId}/items/{productId}", h.removeItem)
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.repo.GetWithProducts(r.Context(), chi.URLParam(r, "userId"), h.lookup)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, view)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ProductID == "" || req.Quantity < 1 {
		http.Error(w, "productId and a quantity of at least 1 are required", http.StatusBadRequest)
		return
	}
	// The line must point at a live product.
	p, err := h.lookup(r.Context(), req.ProductID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	c, err := h.repo.AddItem(r.Context(), chi.URLParam(r, "userId"), req.ProductID, req.Quantity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, found, err := h.repo.UpdateItemQuantity(r.Context(),
		chi.URLParam(r, "userId"), chi.URLParam(r, "productId"), req.Quantity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "cart line not found", http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	c, found, err := h.repo.RemoveItem(r.Context(),
		chi.URLParam(r, "userId"), chi.URLParam(r, "productId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "cart not found", http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, found, err := h.repo.Clear(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "cart not found", http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) validateCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.repo.Validate(r.Context(), chi.URLParam(r, "userId"), h.lookup)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, v)
}

func (h *Handler) abandoned(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	carts, err := h.repo.Abandoned(r.Context(), days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, carts)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
