package orders

const (
	TopicOrderEvents = "store.order.events"
	TopicStockEvents = "store.stock.events"
)

// TopicFor routes an event type to its topic.
func TopicFor(eventType string) string {
	switch eventType {
	case EventStockLow, EventRestocked:
		return TopicStockEvents
	default:
		return TopicOrderEvents
	}
}

// Partition key = correlation id, supaya semua event 1 order maintain urutan.
func PartitionKey(correlationID string) []byte { return []byte(correlationID) }
