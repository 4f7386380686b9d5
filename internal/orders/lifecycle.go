package orders

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	kafkax "github.com/ariefcatur/go-shopfront.git/internal/kafka"
	"github.com/ariefcatur/go-shopfront.git/internal/payment"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

type Store interface {
	Get(ctx context.Context, orderID string) (Order, error)
	Transition(ctx context.Context, orderID string, to Status, note string) (Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
}

type Restocker interface {
	Restock(ctx context.Context, productID string, qty int) error
}

type Refunder interface {
	Refund(ctx context.Context, intentID, reason string) (string, error)
}

type PaymentLedger interface {
	GetByIntent(ctx context.Context, intentID string) (payment.Record, error)
	MarkStatusByIntent(ctx context.Context, intentID string, to payment.Status, methodSummary string) (payment.Record, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Manager owns every order status mutation after materialization and
// the compensating actions on cancellation.
type Manager struct {
	Orders      Store
	Stock       Restocker
	Payments    PaymentLedger
	Gateway     Refunder
	Events      Publisher
	ServiceName string
}

// UpdateStatus is the back-office path (admin or the merchant account);
// the transition table does the gatekeeping.
func (m *Manager) UpdateStatus(ctx context.Context, orderID string, to Status, actorRole string) (Order, error) {
	if actorRole != RoleAdmin && actorRole != RoleSeller {
		return Order{}, apperr.Unauthorizedf("not allowed")
	}
	if to == StatusCancelled {
		// cancellation carries compensations (restock, refund); a bare
		// status flip would strand both
		return Order{}, apperr.Validationf("use the cancel operation to cancel an order")
	}
	before, err := m.Orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	o, err := m.Orders.Transition(ctx, orderID, to, "status updated by "+actorRole)
	if err != nil {
		return Order{}, err
	}
	m.publish(EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID, From: before.Status, To: to,
	})
	return o, nil
}

type CancelResult struct {
	Order    Order
	RefundID string
	// RefundErr reports a failed refund attempt. The cancellation
	// stands regardless; stranding inventory over a refund hiccup is
	// worse than a financial record needing manual reconciliation.
	RefundErr error
}

// Cancel is allowed for the buyer who placed the order or an admin,
// and only while the order is pending or confirmed. It restocks every
// item and then tries to refund the payment the order was created from.
func (m *Manager) Cancel(ctx context.Context, orderID, actorID, actorRole string) (CancelResult, error) {
	o, err := m.Orders.Get(ctx, orderID)
	if err != nil {
		return CancelResult{}, err
	}
	if actorRole != RoleAdmin && !(actorRole == RoleBuyer && actorID == o.BuyerID) {
		return CancelResult{}, apperr.Unauthorizedf("not allowed")
	}
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return CancelResult{}, apperr.Conflictf("order %s: cannot cancel in status %s", orderID, o.Status)
	}

	cancelled, err := m.Orders.Transition(ctx, orderID, StatusCancelled, "cancelled by "+actorRole)
	if err != nil {
		return CancelResult{}, err
	}
	cancelled.Items = o.Items

	for _, it := range o.Items {
		if err := m.Stock.Restock(ctx, it.ProductID, it.Qty); err != nil {
			log.Printf("restock after cancel: order=%s product=%s: %v", orderID, it.ProductID, err)
		}
	}

	res := CancelResult{Order: cancelled}
	res.RefundID, res.RefundErr = m.refund(ctx, o)
	if res.RefundErr != nil {
		log.Printf("refund after cancel failed: order=%s intent=%s: %v", orderID, o.IntentID, res.RefundErr)
	}

	m.publish(EventOrderCancelled, o.ID, OrderCancelledPayload{
		OrderID: o.ID, BuyerID: o.BuyerID, RefundID: res.RefundID, RefundFailed: res.RefundErr != nil,
	})
	return res, nil
}

// refund is best-effort: any error is reported, never fatal to the
// cancellation that already committed.
func (m *Manager) refund(ctx context.Context, o Order) (string, error) {
	rec, err := m.Payments.GetByIntent(ctx, o.IntentID)
	if err != nil {
		return "", err
	}
	if rec.Status != payment.StatusSucceeded {
		// nothing captured, nothing to give back
		return "", nil
	}
	refundID, err := m.Gateway.Refund(ctx, o.IntentID, "order "+o.ID+" cancelled")
	if err != nil {
		return "", err
	}
	if _, err := m.Payments.MarkStatusByIntent(ctx, o.IntentID, payment.StatusRefunded, ""); err != nil {
		return refundID, err
	}
	return refundID, nil
}

// GetOrder is visible to the order's buyer, the merchant and admins;
// everyone else gets the same generic denial.
func (m *Manager) GetOrder(ctx context.Context, orderID, actorID, actorRole string) (Order, error) {
	o, err := m.Orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	switch {
	case actorRole == RoleAdmin, actorRole == RoleSeller:
	case actorRole == RoleBuyer && actorID == o.BuyerID:
	default:
		return Order{}, apperr.Unauthorizedf("not allowed")
	}
	return o, nil
}

// ListOrders scopes non-staff actors to their own orders.
func (m *Manager) ListOrders(ctx context.Context, f ListFilter, actorID, actorRole string) ([]Order, error) {
	if actorRole != RoleAdmin && actorRole != RoleSeller {
		f.BuyerID = actorID
	}
	return m.Orders.List(ctx, f)
}

// publish emits to the status-event producer; the producer is bound to
// its topic at construction.
func (m *Manager) publish(eventType, orderID string, payload any) {
	if m.Events == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      m.ServiceName,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	m.Events.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
