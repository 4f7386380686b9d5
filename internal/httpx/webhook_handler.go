package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
)

// SignatureHeader carries the gateway's HMAC over the raw body.
const SignatureHeader = "X-Gateway-Signature"

type NotificationHandler interface {
	Handle(ctx context.Context, rawBody []byte, sigHeader string) error
}

type WebhookHandler struct {
	Reconciler NotificationHandler
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/payment", h.receive)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	// the body must reach the reconciler unparsed; signature
	// verification runs over the exact bytes the gateway signed
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeErr(w, r, apperr.Validationf("cannot read body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Reconciler.Handle(ctx, body, r.Header.Get(SignatureHeader)); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
