package notify

import (
	"context"
	"fmt"

	kafkax "github.com/ariefcatur/go-premium-store/internal/kafka"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Sender delivers lifecycle messages to people. The Telegram bot is the
// production implementation.
type Sender interface {
	PaymentRequested(ctx context.Context, p orders.OrderReservedPayload) error
	ProofReceived(ctx context.Context, p orders.ProofSubmittedPayload) error
	Delivered(ctx context.Context, p orders.OrderFulfilledPayload) error
	Expired(ctx context.Context, p orders.OrderExpiredPayload) error
	StockLow(ctx context.Context, p orders.StockLowPayload) error
}

// Service turns envelopes into Sender calls, at most once per event id.
type Service struct {
	Sender   Sender
	Dedup    redisx.Claimer
	Consumer string // dedup namespace, e.g. "notifier"
	Log      *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// HandleMessage is the kafka consumer handler.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	ctx = kafkax.ExtractTrace(ctx, m.Headers)
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// pesan rusak tidak akan pernah sukses; commit saja
		s.logger().Error("drop malformed event", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	return s.Handle(ctx, env)
}

// Handle dispatches one envelope. A failed send frees the dedup key so a
// redelivery can retry it.
func (s *Service) Handle(ctx context.Context, env orders.Envelope) (err error) {
	ctx, span := otel.Tracer("github.com/ariefcatur/go-premium-store/internal/notify").Start(ctx, "notify.handle",
		trace.WithAttributes(
			attribute.String("event.type", env.EventType),
			attribute.String("event.id", env.EventID),
			attribute.String("correlation.id", env.CorrelationID)))
	defer span.End()

	consumer := s.Consumer
	if consumer == "" {
		consumer = "notifier"
	}
	key := redisx.Dedup(consumer, env.EventID)
	if s.Dedup != nil {
		_, claimed, err := s.Dedup.Claim(ctx, key, env.CorrelationID, redisx.TTLDedup)
		if err != nil {
			return fmt.Errorf("dedup claim: %w", err)
		}
		if !claimed {
			s.logger().Debug("duplicate event skipped", zap.String("event_id", env.EventID))
			return nil
		}
	}

	if err := s.dispatch(ctx, env); err != nil {
		span.RecordError(err)
		if s.Dedup != nil {
			_ = s.Dedup.Release(ctx, key)
		}
		return err
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderReserved:
		p, err := kafkax.UnwrapPayload[orders.OrderReservedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Sender.PaymentRequested(ctx, p)
	case orders.EventProofSubmitted:
		p, err := kafkax.UnwrapPayload[orders.ProofSubmittedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Sender.ProofReceived(ctx, p)
	case orders.EventOrderFulfilled:
		p, err := kafkax.UnwrapPayload[orders.OrderFulfilledPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Sender.Delivered(ctx, p)
	case orders.EventOrderExpired:
		p, err := kafkax.UnwrapPayload[orders.OrderExpiredPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Sender.Expired(ctx, p)
	case orders.EventStockLow:
		p, err := kafkax.UnwrapPayload[orders.StockLowPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Sender.StockLow(ctx, p)
	default:
		// Restocked dan event lain cukup di-log
		s.logger().Debug("event ignored", zap.String("event_type", env.EventType))
		return nil
	}
}
