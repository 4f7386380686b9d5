package catalog

import "time"

const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

type Product struct {
	ID             string
	SKU            string
	Name           string
	Status         string
	PriceCents     int
	Stock          int
	AllowBackorder bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p Product) Purchasable() bool { return p.Status == StatusActive }
