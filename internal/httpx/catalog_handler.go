package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shopfront.git/internal/catalog"
	"github.com/ariefcatur/go-shopfront.git/internal/redisx"
)

type ProductLister interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

type CatalogHandler struct {
	Products ProductLister
	Redis    *redis.Client
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Get("/products", h.list)
}

type productResp struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	PriceCents     int    `json:"price_cents"`
	Stock          int    `json:"stock"`
	AllowBackorder bool   `json:"allow_backorder"`
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// public data, cheap to serve stale for a minute
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, redisx.KeyProductList).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, productResp{
			ID: p.ID, SKU: p.SKU, Name: p.Name, Status: p.Status,
			PriceCents: p.PriceCents, Stock: p.Stock, AllowBackorder: p.AllowBackorder,
		})
	}

	if h.Redis != nil {
		if b, err := json.Marshal(out); err == nil {
			_ = h.Redis.Set(ctx, redisx.KeyProductList, b, redisx.TTLProductList).Err()
		}
	}
	writeJSON(w, http.StatusOK, out)
}
