package notify

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-premium-store/internal/orders"
	"go.uber.org/zap"
)

// Local is an in-process orders.Publisher for deployments without Kafka.
// Events are handled by one goroutine in publish order. Once Run starts
// shutting down, Publish fails with orders.ErrPublisherClosed instead of
// queueing events nobody will handle.
type Local struct {
	svc   *Service
	inbox chan localEvent

	stopping chan struct{}
	mu       sync.RWMutex
	closed   bool
}

type localEvent struct {
	ctx context.Context
	ev  orders.Envelope
}

func NewLocal(svc *Service, buf int) *Local {
	if buf <= 0 {
		buf = 256
	}
	return &Local{svc: svc, inbox: make(chan localEvent, buf), stopping: make(chan struct{})}
}

func (l *Local) Publish(ctx context.Context, ev orders.Envelope) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return orders.ErrPublisherClosed
	}
	// span tetap tersambung, tapi pembatalan request tidak ikut
	detached := context.WithoutCancel(ctx)
	select {
	case l.inbox <- localEvent{ctx: detached, ev: ev}:
		return nil
	case <-l.stopping:
		return orders.ErrPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles queued events until ctx is done, then refuses new events and
// drains what was accepted.
func (l *Local) Run(ctx context.Context) error {
	for {
		select {
		case e := <-l.inbox:
			l.handle(e)
		case <-ctx.Done():
			// bangunkan Publish yang menunggu inbox, lalu tunggu semuanya keluar
			close(l.stopping)
			l.mu.Lock()
			l.closed = true
			l.mu.Unlock()
			for {
				select {
				case e := <-l.inbox:
					l.handle(e)
				default:
					return nil
				}
			}
		}
	}
}

func (l *Local) handle(e localEvent) {
	if err := l.svc.Handle(e.ctx, e.ev); err != nil {
		l.svc.logger().Warn("local notify failed",
			zap.String("event_type", e.ev.EventType), zap.String("correlation_id", e.ev.CorrelationID), zap.Error(err))
	}
}
