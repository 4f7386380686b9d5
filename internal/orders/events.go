package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventOrderCancelled       = "OrderCancelled"
	EventManualRefundRequired = "ManualRefundRequired"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	BuyerID    string      `json:"buyer_id"`
	IntentID   string      `json:"intent_id"`
	TotalCents int         `json:"total_cents"`
	Items      []ItemPrice `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Note    string `json:"note,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID      string `json:"order_id"`
	BuyerID      string `json:"buyer_id"`
	RefundID     string `json:"refund_id,omitempty"`
	RefundFailed bool   `json:"refund_failed,omitempty"`
}

// ManualRefundRequiredPayload flags a succeeded payment with no order
// behind it (e.g. the last unit was sold between checkout validation
// and order creation). An operator has to refund by hand.
type ManualRefundRequiredPayload struct {
	IntentID    string `json:"intent_id"`
	BuyerID     string `json:"buyer_id"`
	AmountCents int    `json:"amount_cents"`
	Reason      string `json:"reason"`
}
