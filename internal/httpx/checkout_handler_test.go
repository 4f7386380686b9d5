package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/checkout"
)

type fakeStarter struct {
	res checkout.StartResult
	err error
}

func (f *fakeStarter) Start(_ context.Context, _, _ string) (checkout.StartResult, error) {
	return f.res, f.err
}

func TestStartCheckout_ReturnsHandle(t *testing.T) {
	h := &CheckoutHandler{Checkout: &fakeStarter{res: checkout.StartResult{
		IntentID: "pi-1", CheckoutHandle: "pi-1-secret", AmountCents: 2000,
	}}}

	body := bytes.NewBufferString(`{"shipping_address":"1 Main St"}`)
	req := withActor(httptest.NewRequest(http.MethodPost, "/checkout", body), "buyer-1", "buyer")
	w := httptest.NewRecorder()
	h.start(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp startCheckoutResp
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "pi-1-secret", resp.CheckoutHandle)
	assert.Equal(t, 2000, resp.AmountCents)
}

func TestStartCheckout_EmptyCartIsConflict(t *testing.T) {
	h := &CheckoutHandler{Checkout: &fakeStarter{err: apperr.Conflictf("cart is empty, nothing to check out")}}

	body := bytes.NewBufferString(`{"shipping_address":"1 Main St"}`)
	req := withActor(httptest.NewRequest(http.MethodPost, "/checkout", body), "buyer-1", "buyer")
	w := httptest.NewRecorder()
	h.start(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "cart is empty")
}

func TestStartCheckout_GatewayDownIsBadGateway(t *testing.T) {
	h := &CheckoutHandler{Checkout: &fakeStarter{err: apperr.Upstream("gateway POST /v1/intents", nil)}}

	body := bytes.NewBufferString(`{"shipping_address":"1 Main St"}`)
	req := withActor(httptest.NewRequest(http.MethodPost, "/checkout", body), "buyer-1", "buyer")
	w := httptest.NewRecorder()
	h.start(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "/v1/intents", "upstream detail stays server-side")
}

func TestStartCheckout_MissingIdentity(t *testing.T) {
	h := &CheckoutHandler{Checkout: &fakeStarter{}}

	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	h.start(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
