package redisx

import "time"

const (
	// Cached catalog listing JSON (public data): catalog:products
	KeyProductList = "catalog:products"

	// Cached order view JSON: order_status:{order_id}. Invalidated on
	// every status transition; the TTL bounds staleness either way.
	KeyOrderStatus = "order_status:%s"

	// Dedup inbound gateway notifications: dedup:webhook:{event_id}
	// Fast path only; the DB upserts stay the source of truth.
	KeyWebhookDedup = "dedup:webhook:%s"
)

var (
	TTLProductList  = 1 * time.Minute
	TTLStatusCache  = 5 * time.Minute
	TTLWebhookDedup = 48 * time.Hour
)
