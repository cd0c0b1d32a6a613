package orders

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrPublisherClosed is returned by publishers that have started shutting
// down and no longer guarantee delivery.
var ErrPublisherClosed = errors.New("publisher closed")

// Publisher hands lifecycle events to the messaging layer.
type Publisher interface {
	Publish(ctx context.Context, ev Envelope) error
}

type PublisherFunc func(ctx context.Context, ev Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, ev Envelope) error { return f(ctx, ev) }

// LogPublisher only logs events. Used when neither Kafka nor a local sender is wired.
type LogPublisher struct{ Log *zap.Logger }

func (p LogPublisher) Publish(_ context.Context, ev Envelope) error {
	p.Log.Info("event",
		zap.String("event_type", ev.EventType),
		zap.String("event_id", ev.EventID),
		zap.String("correlation_id", ev.CorrelationID),
	)
	return nil
}
