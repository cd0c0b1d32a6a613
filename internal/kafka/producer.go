package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer writes through a buffered inbox so callers never block on the
// broker. Messages carry their own topic. After shutdown starts, Publish
// fails with orders.ErrPublisherClosed; everything accepted before that is
// flushed.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *zap.Logger

	stopping chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	if buf <= 0 {
		buf = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		inbox:    make(chan kafka.Message, buf),
		closeCh:  make(chan struct{}),
		stopping: make(chan struct{}),
		log:      log,
	}
}

// Start runs the writer until ctx is done or Close is called.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case m := <-p.inbox:
				p.write(m)
			case <-ctx.Done():
				p.flush()
				return
			case <-p.stopping:
				p.flush()
				return
			}
		}
	}()
}

// flush sisa pesan sebelum keluar
func (p *Producer) flush() {
	p.shut()
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			_ = p.w.Close()
			return
		}
	}
}

// shut refuses new messages and waits until no Publish is mid-enqueue.
func (p *Producer) shut() {
	p.stopOnce.Do(func() {
		close(p.stopping)
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	})
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write failed",
			zap.String("topic", m.Topic), zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// Publish enqueues m. It fails when the producer is shutting down or ctx
// ends before the inbox has room.
func (p *Producer) Publish(ctx context.Context, m kafka.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return orders.ErrPublisherClosed
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	select {
	case p.inbox <- m:
		return nil
	case <-p.stopping:
		return orders.ErrPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages; the Start goroutine flushes and exits.
func (p *Producer) Close() { p.shut() }

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
