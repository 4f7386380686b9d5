package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/cart"
	"github.com/ariefcatur/go-shopfront.git/internal/catalog"
	"github.com/ariefcatur/go-shopfront.git/internal/orders"
	"github.com/ariefcatur/go-shopfront.git/internal/payment"
)

// --- fakes ---

type fakeCarts struct {
	byBuyer map[string][]cart.Item
}

func (f *fakeCarts) Items(_ context.Context, buyerID string) ([]cart.Item, error) {
	return f.byBuyer[buyerID], nil
}

type fakeProducts struct {
	byID map[string]catalog.Product
}

func (f *fakeProducts) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return catalog.Product{}, apperr.NotFoundf("product %s not found", id)
	}
	return p, nil
}

type fakeGateway struct {
	intent payment.Intent
	err    error
	got    payment.CreateIntentParams
	calls  int
}

func (f *fakeGateway) CreateIntent(_ context.Context, p payment.CreateIntentParams) (payment.Intent, error) {
	f.calls++
	f.got = p
	if f.err != nil {
		return payment.Intent{}, f.err
	}
	return f.intent, nil
}

type fakePayments struct {
	created []payment.Record
	err     error
}

func (f *fakePayments) Create(_ context.Context, buyerID, intentID string, amountCents int, currency string) (payment.Record, error) {
	if f.err != nil {
		return payment.Record{}, f.err
	}
	rec := payment.Record{BuyerID: buyerID, IntentID: intentID, AmountCents: amountCents, Currency: currency, Status: payment.StatusPending}
	f.created = append(f.created, rec)
	return rec, nil
}

// fakeMaterializer mimics the all-or-nothing repo transaction: stock is
// checked for every line before any decrement lands.
type fakeMaterializer struct {
	mu       sync.Mutex
	stock    map[string]int
	byIntent map[string]string
}

func newFakeMaterializer(stock map[string]int) *fakeMaterializer {
	return &fakeMaterializer{stock: stock, byIntent: map[string]string{}}
}

func (f *fakeMaterializer) FindByIntent(_ context.Context, intentID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byIntent[intentID]
	return id, ok, nil
}

func (f *fakeMaterializer) Materialize(_ context.Context, p orders.MaterializeParams) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.byIntent[p.IntentID]; ok {
		return id, true, nil
	}
	for _, l := range p.Lines {
		if f.stock[l.ProductID] < l.Qty {
			return "", false, apperr.Conflictf("insufficient stock for %s", l.ProductID)
		}
	}
	for _, l := range p.Lines {
		f.stock[l.ProductID] -= l.Qty
	}
	id := fmt.Sprintf("ord-%d", len(f.byIntent)+1)
	f.byIntent[p.IntentID] = id
	return id, false, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	values [][]byte
}

func (f *fakePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = append(f.values, value)
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.values)
}

// --- fixtures ---

func activeProduct(id string, price, stock int) catalog.Product {
	return catalog.Product{ID: id, Name: "product " + id, Status: catalog.StatusActive, PriceCents: price, Stock: stock}
}

func testOrchestrator() (*Orchestrator, *fakeCarts, *fakeProducts, *fakeGateway, *fakePayments, *fakeMaterializer, *fakePublisher, *fakePublisher) {
	carts := &fakeCarts{byBuyer: map[string][]cart.Item{
		"buyer-1": {{ProductID: "P", Qty: 2, UnitPriceCents: 1000}},
	}}
	products := &fakeProducts{byID: map[string]catalog.Product{
		"P": activeProduct("P", 1000, 5),
	}}
	gw := &fakeGateway{intent: payment.Intent{ID: "pi-1", ClientSecret: "pi-1-secret"}}
	pay := &fakePayments{}
	mat := newFakeMaterializer(map[string]int{"P": 5})
	created := &fakePublisher{}
	alerts := &fakePublisher{}
	o := &Orchestrator{
		Carts: carts, Products: products, Gateway: gw, Payments: pay, Orders: mat,
		OrderEvents: created, Alerts: alerts,
		Currency: "usd", ServiceName: "test",
	}
	return o, carts, products, gw, pay, mat, created, alerts
}

// --- Start ---

func TestStart_HappyPath(t *testing.T) {
	o, _, _, gw, pay, _, _, _ := testOrchestrator()

	res, err := o.Start(context.Background(), "buyer-1", "1 Main St")

	require.NoError(t, err)
	assert.Equal(t, "pi-1", res.IntentID)
	assert.Equal(t, "pi-1-secret", res.CheckoutHandle)
	assert.Equal(t, 2000, res.AmountCents)

	assert.Equal(t, "buyer-1", gw.got.Metadata[MetaBuyerID])
	assert.Equal(t, "1 Main St", gw.got.Metadata[MetaShippingAddress])

	require.Len(t, pay.created, 1)
	assert.Equal(t, "pi-1", pay.created[0].IntentID)
	assert.Equal(t, 2000, pay.created[0].AmountCents)
	assert.Equal(t, payment.StatusPending, pay.created[0].Status)
}

func TestStart_EmptyCart(t *testing.T) {
	o, carts, _, gw, _, _, _, _ := testOrchestrator()
	carts.byBuyer["buyer-1"] = nil

	_, err := o.Start(context.Background(), "buyer-1", "1 Main St")

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "cart is empty")
	assert.Equal(t, 0, gw.calls, "no intent for an empty cart")
}

func TestStart_InactiveProductNamedInError(t *testing.T) {
	o, _, products, gw, _, _, _, _ := testOrchestrator()
	p := products.byID["P"]
	p.Status = catalog.StatusArchived
	products.byID["P"] = p

	_, err := o.Start(context.Background(), "buyer-1", "1 Main St")

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "product P")
	assert.Equal(t, 0, gw.calls)
}

func TestStart_InsufficientStockNamedInError(t *testing.T) {
	o, _, products, _, pay, _, _, _ := testOrchestrator()
	p := products.byID["P"]
	p.Stock = 1
	products.byID["P"] = p

	_, err := o.Start(context.Background(), "buyer-1", "1 Main St")

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "product P")
	assert.Empty(t, pay.created)
}

func TestStart_BackorderBypassesStockCheck(t *testing.T) {
	o, _, products, _, _, _, _, _ := testOrchestrator()
	p := products.byID["P"]
	p.Stock = 0
	p.AllowBackorder = true
	products.byID["P"] = p

	res, err := o.Start(context.Background(), "buyer-1", "1 Main St")

	require.NoError(t, err)
	assert.Equal(t, 2000, res.AmountCents)
}

func TestStart_GatewayFailureLeavesNoPaymentRecord(t *testing.T) {
	o, _, _, gw, pay, _, _, _ := testOrchestrator()
	gw.err = apperr.Upstream("gateway POST /v1/intents", errors.New("timeout"))

	_, err := o.Start(context.Background(), "buyer-1", "1 Main St")

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
	assert.Empty(t, pay.created, "record only after the intent exists")
}

// --- Complete ---

func TestComplete_HappyPath(t *testing.T) {
	o, _, _, _, _, mat, created, alerts := testOrchestrator()

	orderID, existed, err := o.Complete(context.Background(), "pi-1", "buyer-1", "1 Main St")

	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotEmpty(t, orderID)
	assert.Equal(t, 3, mat.stock["P"], "stock 5 - 2")
	assert.Equal(t, 1, created.count())
	assert.Equal(t, 0, alerts.count())

	// the emitted event carries the priced lines
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(created.values[0], &env))
	assert.Equal(t, orders.EventOrderCreated, env.EventType)
	var p orders.OrderCreatedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 2000, p.TotalCents)
	require.Len(t, p.Items, 1)
	assert.Equal(t, 1000, p.Items[0].PriceCents)
	assert.Equal(t, 2, p.Items[0].Qty)
}

func TestComplete_RepeatDeliveryYieldsSameOrder(t *testing.T) {
	o, _, _, _, _, mat, created, _ := testOrchestrator()

	first, existed, err := o.Complete(context.Background(), "pi-1", "buyer-1", "1 Main St")
	require.NoError(t, err)
	require.False(t, existed)

	second, existed, err := o.Complete(context.Background(), "pi-1", "buyer-1", "1 Main St")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first, second)

	assert.Equal(t, 3, mat.stock["P"], "stock decremented once")
	assert.Equal(t, 1, created.count(), "one creation event")
}

// The real repo wipes the cart when the order lands, so a repeat
// delivery typically arrives to an empty cart. It must get the existing
// order back and raise no alert.
func TestComplete_ReplayAfterCartClearedReturnsExistingOrder(t *testing.T) {
	o, carts, _, _, _, _, created, alerts := testOrchestrator()

	first, existed, err := o.Complete(context.Background(), "pi-1", "buyer-1", "1 Main St")
	require.NoError(t, err)
	require.False(t, existed)

	carts.byBuyer["buyer-1"] = nil

	second, existed, err := o.Complete(context.Background(), "pi-1", "buyer-1", "1 Main St")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, created.count(), "one creation event")
	assert.Equal(t, 0, alerts.count(), "no spurious alert on replay")
}

func TestComplete_EmptyCartFails(t *testing.T) {
	o, carts, _, _, _, _, _, _ := testOrchestrator()
	carts.byBuyer["buyer-1"] = nil

	_, _, err := o.Complete(context.Background(), "pi-1", "buyer-1", "1 Main St")

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestComplete_LostStockRaceRaisesAlert(t *testing.T) {
	o, _, _, _, _, mat, created, alerts := testOrchestrator()
	mat.stock["P"] = 1 // validation said 5, reality says 1

	_, _, err := o.Complete(context.Background(), "pi-1", "buyer-1", "1 Main St")

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, 0, created.count(), "no order event")
	require.Equal(t, 1, alerts.count(), "operator alert raised")

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(alerts.values[0], &env))
	assert.Equal(t, orders.EventManualRefundRequired, env.EventType)
	var p orders.ManualRefundRequiredPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "pi-1", p.IntentID)
	assert.Equal(t, 2000, p.AmountCents)
}

// Two checkouts both validated against the last unit; the decrement is
// the arbiter and exactly one may win.
func TestComplete_ConcurrentOversellOnlyOneWins(t *testing.T) {
	o, carts, products, _, _, mat, created, alerts := testOrchestrator()
	products.byID["P"] = activeProduct("P", 1000, 1)
	mat.stock["P"] = 1
	carts.byBuyer["buyer-1"] = []cart.Item{{ProductID: "P", Qty: 1, UnitPriceCents: 1000}}
	carts.byBuyer["buyer-2"] = []cart.Item{{ProductID: "P", Qty: 1, UnitPriceCents: 1000}}

	type result struct {
		orderID string
		err     error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, buyer := range []struct{ id, intent string }{
		{"buyer-1", "pi-a"}, {"buyer-2", "pi-b"},
	} {
		wg.Add(1)
		go func(buyerID, intentID string) {
			defer wg.Done()
			id, _, err := o.Complete(context.Background(), intentID, buyerID, "1 Main St")
			results <- result{orderID: id, err: err}
		}(buyer.id, buyer.intent)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for r := range results {
		if r.err == nil {
			wins++
			assert.NotEmpty(t, r.orderID)
		} else {
			losses++
			assert.True(t, apperr.IsKind(r.err, apperr.KindConflict))
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
	assert.Equal(t, 0, mat.stock["P"], "never driven negative")
	assert.Equal(t, 1, created.count())
	assert.Equal(t, 1, alerts.count())
}
