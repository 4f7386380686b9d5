package orders

const (
	TopicOrderCreated = "shop.order.created"
	TopicOrderStatus  = "shop.order.status"
	TopicOpsAlert     = "shop.ops.alert"
)

// Partition key = order_id so every event of one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
