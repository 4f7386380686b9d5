package orders

import "time"

type Order struct {
	ID              string
	BuyerID         string
	TotalCents      int
	ShippingAddress string
	Status          Status
	// IntentID links the order to the gateway payment that funded it.
	// Stored at creation so cancellation refunds the right payment
	// instead of guessing from "most recent succeeded".
	IntentID  string
	CreatedAt time.Time
	UpdatedAt time.Time

	Items   []Item
	History []HistoryEntry
}

// Item freezes the transaction price; rows are immutable once written.
type Item struct {
	OrderID        string
	ProductID      string
	Qty            int
	UnitPriceCents int
}

type HistoryEntry struct {
	Status    Status
	Note      string
	CreatedAt time.Time
}
