package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/cart"
)

type CartService interface {
	AddItem(ctx context.Context, buyerID, productID string, qty int) error
	UpdateItem(ctx context.Context, buyerID, productID string, qty int) error
	RemoveItem(ctx context.Context, buyerID, productID string) error
	Items(ctx context.Context, buyerID string) ([]cart.Item, error)
}

type CartHandler struct {
	Carts CartService
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart", h.list)
	r.Post("/cart/items", h.add)
	r.Patch("/cart/items/{productID}", h.update)
	r.Delete("/cart/items/{productID}", h.remove)
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type cartItemResp struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int    `json:"unit_price_cents"`
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	buyerID, _ := actor(r)
	if buyerID == "" {
		writeErr(w, r, apperr.Unauthorizedf("missing identity"))
		return
	}
	var req cartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, apperr.Validationf("invalid json"))
		return
	}
	if req.ProductID == "" {
		writeErr(w, r, apperr.Validationf("product_id is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Carts.AddItem(ctx, buyerID, req.ProductID, req.Qty); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	buyerID, _ := actor(r)
	if buyerID == "" {
		writeErr(w, r, apperr.Unauthorizedf("missing identity"))
		return
	}
	productID := chi.URLParam(r, "productID")
	var req struct {
		Qty int `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, apperr.Validationf("invalid json"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Carts.UpdateItem(ctx, buyerID, productID, req.Qty); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	buyerID, _ := actor(r)
	if buyerID == "" {
		writeErr(w, r, apperr.Unauthorizedf("missing identity"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Carts.RemoveItem(ctx, buyerID, chi.URLParam(r, "productID")); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	buyerID, _ := actor(r)
	if buyerID == "" {
		writeErr(w, r, apperr.Unauthorizedf("missing identity"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Carts.Items(ctx, buyerID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out := make([]cartItemResp, 0, len(items))
	for _, it := range items {
		out = append(out, cartItemResp{ProductID: it.ProductID, Qty: it.Qty, UnitPriceCents: it.UnitPriceCents})
	}
	writeJSON(w, http.StatusOK, out)
}
