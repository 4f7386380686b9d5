package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/orders"
	"github.com/ariefcatur/go-shopfront.git/internal/redisx"
)

type OrderService interface {
	GetOrder(ctx context.Context, orderID, actorID, actorRole string) (orders.Order, error)
	ListOrders(ctx context.Context, f orders.ListFilter, actorID, actorRole string) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status, actorRole string) (orders.Order, error)
	Cancel(ctx context.Context, orderID, actorID, actorRole string) (orders.CancelResult, error)
}

type OrdersHandler struct {
	Manager OrderService
	Redis   *redis.Client
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/cancel", h.cancel)
}

type orderItemResp struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int    `json:"unit_price_cents"`
}

type historyResp struct {
	Status    orders.Status `json:"status"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type orderResp struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	TotalCents      int             `json:"total_cents"`
	ShippingAddress string          `json:"shipping_address"`
	Status          orders.Status   `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []orderItemResp `json:"items,omitempty"`
	History         []historyResp   `json:"history,omitempty"`
}

func toOrderResp(o orders.Order) orderResp {
	out := orderResp{
		ID:              o.ID,
		BuyerID:         o.BuyerID,
		TotalCents:      o.TotalCents,
		ShippingAddress: o.ShippingAddress,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemResp{ProductID: it.ProductID, Qty: it.Qty, UnitPriceCents: it.UnitPriceCents})
	}
	for _, hst := range o.History {
		out.History = append(out.History, historyResp{Status: hst.Status, Note: hst.Note, CreatedAt: hst.CreatedAt})
	}
	return out
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	actorID, actorRole := actor(r)
	if actorID == "" {
		writeErr(w, r, apperr.Unauthorizedf("missing identity"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	f := orders.ListFilter{
		BuyerID: r.URL.Query().Get("buyer_id"),
		Status:  orders.Status(r.URL.Query().Get("status")),
	}
	list, err := h.Manager.ListOrders(ctx, f, actorID, actorRole)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out := make([]orderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	actorID, actorRole := actor(r)
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// 1) try cache; the cached view carries the buyer id, so the
	// manager's visibility rule is re-applied before serving it
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var cached orderResp
			if json.Unmarshal([]byte(s), &cached) == nil && canReadOrder(cached.BuyerID, actorID, actorRole) {
				writeJSON(w, http.StatusOK, cached)
				return
			}
		}
	}

	// 2) fallback DB
	o, err := h.Manager.GetOrder(ctx, orderID, actorID, actorRole)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp := toOrderResp(o)
	if h.Redis != nil {
		if b, err := json.Marshal(resp); err == nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// canReadOrder mirrors the manager's visibility rule so a cache hit
// can never show an order to the wrong actor.
func canReadOrder(buyerID, actorID, actorRole string) bool {
	switch actorRole {
	case orders.RoleAdmin, orders.RoleSeller:
		return true
	case orders.RoleBuyer:
		return actorID == buyerID
	}
	return false
}

func (h *OrdersHandler) invalidate(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	_, actorRole := actor(r)
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, apperr.Validationf("invalid json"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Manager.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status, actorRole)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	h.invalidate(ctx, o.ID)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

type cancelResp struct {
	Order       orderResp `json:"order"`
	RefundID    string    `json:"refund_id,omitempty"`
	RefundError string    `json:"refund_error,omitempty"`
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	actorID, actorRole := actor(r)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Manager.Cancel(ctx, chi.URLParam(r, "id"), actorID, actorRole)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	h.invalidate(ctx, res.Order.ID)
	out := cancelResp{Order: toOrderResp(res.Order), RefundID: res.RefundID}
	if res.RefundErr != nil {
		// cancellation stands; the caller still learns the refund
		// needs manual follow-up
		out.RefundError = "refund could not be issued, support has been notified"
	}
	writeJSON(w, http.StatusOK, out)
}
