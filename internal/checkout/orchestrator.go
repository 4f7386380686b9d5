package checkout

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/cart"
	"github.com/ariefcatur/go-shopfront.git/internal/catalog"
	kafkax "github.com/ariefcatur/go-shopfront.git/internal/kafka"
	"github.com/ariefcatur/go-shopfront.git/internal/orders"
	"github.com/ariefcatur/go-shopfront.git/internal/payment"
)

// Metadata keys attached to the payment intent. The async notification
// carries them back, so order creation needs no other context.
const (
	MetaBuyerID         = "buyer_id"
	MetaShippingAddress = "shipping_address"
)

type CartReader interface {
	Items(ctx context.Context, buyerID string) ([]cart.Item, error)
}

type ProductReader interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

type Gateway interface {
	CreateIntent(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error)
}

type PaymentLedger interface {
	Create(ctx context.Context, buyerID, intentID string, amountCents int, currency string) (payment.Record, error)
}

type Materializer interface {
	FindByIntent(ctx context.Context, intentID string) (orderID string, ok bool, err error)
	Materialize(ctx context.Context, p orders.MaterializeParams) (orderID string, existed bool, err error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Orchestrator drives a checkout attempt: validate the cart, hand off
// to the gateway, and once payment is confirmed turn the cart into an
// order.
type Orchestrator struct {
	Carts    CartReader
	Products ProductReader
	Gateway  Gateway
	Payments PaymentLedger
	Orders   Materializer

	OrderEvents Publisher // shop.order.created
	Alerts      Publisher // shop.ops.alert

	Currency    string
	ServiceName string
}

type StartResult struct {
	IntentID string
	// CheckoutHandle is what the storefront hands the buyer's browser
	// to complete payment on the gateway's side.
	CheckoutHandle string
	AmountCents    int
}

// Start validates the whole cart, prices it from the add-time
// snapshots, and creates the gateway intent. No order exists after
// Start; that waits for the confirmed-payment notification. A gateway
// failure aborts before any payment record is written, so resubmitting
// the checkout is always safe.
func (o *Orchestrator) Start(ctx context.Context, buyerID, shippingAddress string) (StartResult, error) {
	if buyerID == "" {
		return StartResult{}, apperr.Validationf("buyer id is required")
	}
	if shippingAddress == "" {
		return StartResult{}, apperr.Validationf("shipping address is required")
	}

	items, err := o.Carts.Items(ctx, buyerID)
	if err != nil {
		return StartResult{}, err
	}
	if len(items) == 0 {
		return StartResult{}, apperr.Conflictf("cart is empty, nothing to check out")
	}

	total := 0
	for _, it := range items {
		p, err := o.Products.GetProduct(ctx, it.ProductID)
		if err != nil {
			return StartResult{}, err
		}
		if !p.Purchasable() {
			return StartResult{}, apperr.Conflictf("product %s is not available", p.Name)
		}
		if !p.AllowBackorder && p.Stock < it.Qty {
			return StartResult{}, apperr.Conflictf("insufficient stock for %s: want %d, have %d", p.Name, it.Qty, p.Stock)
		}
		total += it.UnitPriceCents * it.Qty
	}

	intent, err := o.Gateway.CreateIntent(ctx, payment.CreateIntentParams{
		AmountCents: total,
		Currency:    o.Currency,
		BuyerRef:    buyerID,
		Metadata: map[string]string{
			MetaBuyerID:         buyerID,
			MetaShippingAddress: shippingAddress,
		},
	})
	if err != nil {
		return StartResult{}, err
	}

	if _, err := o.Payments.Create(ctx, buyerID, intent.ID, total, o.Currency); err != nil {
		return StartResult{}, fmt.Errorf("persist payment record for intent %s: %w", intent.ID, err)
	}

	return StartResult{IntentID: intent.ID, CheckoutHandle: intent.ClientSecret, AmountCents: total}, nil
}

// Complete runs once payment is confirmed. It re-reads the cart and
// materializes the order in one shot. Safe to repeat for the same
// intent. A lost stock race leaves the payment succeeded with no
// order; that raises an ops alert for a manual refund.
func (o *Orchestrator) Complete(ctx context.Context, intentID, buyerID, shippingAddress string) (orderID string, existed bool, err error) {
	// a replay that arrives after the cart was wiped must hand back the
	// existing order, not trip over the empty cart
	if id, ok, err := o.Orders.FindByIntent(ctx, intentID); err != nil {
		return "", false, err
	} else if ok {
		return id, true, nil
	}

	items, err := o.Carts.Items(ctx, buyerID)
	if err != nil {
		return "", false, err
	}
	if len(items) == 0 {
		return "", false, apperr.Conflictf("cart for buyer %s is empty, cannot create order for intent %s", buyerID, intentID)
	}

	total := 0
	lines := make([]orders.MaterializeLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, orders.MaterializeLine{
			ProductID:      it.ProductID,
			Qty:            it.Qty,
			UnitPriceCents: it.UnitPriceCents,
		})
		total += it.UnitPriceCents * it.Qty
	}

	orderID, existed, err = o.Orders.Materialize(ctx, orders.MaterializeParams{
		BuyerID:         buyerID,
		IntentID:        intentID,
		ShippingAddress: shippingAddress,
		Lines:           lines,
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			// payment is captured but the order never happened
			log.Printf("order creation failed after payment: intent=%s buyer=%s: %v", intentID, buyerID, err)
			o.alert(intentID, buyerID, total, err.Error())
		}
		return "", false, err
	}

	if !existed {
		o.publishCreated(orderID, buyerID, intentID, total, lines)
	}
	return orderID, existed, nil
}

func (o *Orchestrator) publishCreated(orderID, buyerID, intentID string, total int, lines []orders.MaterializeLine) {
	if o.OrderEvents == nil {
		return
	}
	items := make([]orders.ItemPrice, 0, len(lines))
	for _, l := range lines {
		items = append(items, orders.ItemPrice{ProductID: l.ProductID, Qty: l.Qty, PriceCents: l.UnitPriceCents})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      o.ServiceName,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID: orderID, BuyerID: buyerID, IntentID: intentID, TotalCents: total, Items: items,
		}),
	}
	o.OrderEvents.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (o *Orchestrator) alert(intentID, buyerID string, amountCents int, reason string) {
	if o.Alerts == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventManualRefundRequired,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      o.ServiceName,
		CorrelationID: intentID,
		Payload: kafkax.MustMarshal(orders.ManualRefundRequiredPayload{
			IntentID: intentID, BuyerID: buyerID, AmountCents: amountCents, Reason: reason,
		}),
	}
	o.Alerts.Publish([]byte(intentID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventManualRefundRequired)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
