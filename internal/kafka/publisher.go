package kafka

import (
	"context"
	"strconv"

	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/segmentio/kafka-go"
)

// EventPublisher puts order and stock events on their topics, keyed by
// correlation id so one order's events stay ordered.
type EventPublisher struct {
	P *Producer
}

func (e EventPublisher) Publish(ctx context.Context, ev orders.Envelope) error {
	m, err := Message(ctx, ev)
	if err != nil {
		return err
	}
	return e.P.Publish(ctx, m)
}

// Message builds the kafka message for ev.
func Message(ctx context.Context, ev orders.Envelope) (kafka.Message, error) {
	value, err := EncodeEnvelope(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(ev.EventType)},
		{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(ev.EventVersion))},
	}
	return kafka.Message{
		Topic:   orders.TopicFor(ev.EventType),
		Key:     orders.PartitionKey(ev.CorrelationID),
		Value:   value,
		Time:    ev.OccurredAt,
		Headers: InjectTrace(ctx, headers),
	}, nil
}
