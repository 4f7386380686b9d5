package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/checkout"
)

type CheckoutStarter interface {
	Start(ctx context.Context, buyerID, shippingAddress string) (checkout.StartResult, error)
}

type CheckoutHandler struct {
	Checkout CheckoutStarter
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.start)
}

type startCheckoutReq struct {
	ShippingAddress string `json:"shipping_address"`
}

type startCheckoutResp struct {
	IntentID       string `json:"intent_id"`
	CheckoutHandle string `json:"checkout_handle"`
	AmountCents    int    `json:"amount_cents"`
}

func (h *CheckoutHandler) start(w http.ResponseWriter, r *http.Request) {
	buyerID, _ := actor(r)
	if buyerID == "" {
		writeErr(w, r, apperr.Unauthorizedf("missing identity"))
		return
	}
	var req startCheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, apperr.Validationf("invalid json"))
		return
	}

	// the gateway call sits inside this budget; a timeout is an
	// unknown outcome, surfaced as upstream
	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	res, err := h.Checkout.Start(ctx, buyerID, req.ShippingAddress)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, startCheckoutResp{
		IntentID:       res.IntentID,
		CheckoutHandle: res.CheckoutHandle,
		AmountCents:    res.AmountCents,
	})
}
