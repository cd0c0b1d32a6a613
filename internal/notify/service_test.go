package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkax "github.com/ariefcatur/go-premium-store/internal/kafka"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/redisx"
)

type fakeSender struct {
	mu        sync.Mutex
	calls     []string
	delivered []orders.OrderFulfilledPayload
	fail      error
}

func (f *fakeSender) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail
}

func (f *fakeSender) PaymentRequested(context.Context, orders.OrderReservedPayload) error {
	return f.record("payment")
}
func (f *fakeSender) ProofReceived(context.Context, orders.ProofSubmittedPayload) error {
	return f.record("proof")
}
func (f *fakeSender) Delivered(_ context.Context, p orders.OrderFulfilledPayload) error {
	f.mu.Lock()
	f.delivered = append(f.delivered, p)
	f.mu.Unlock()
	return f.record("delivered")
}
func (f *fakeSender) Expired(context.Context, orders.OrderExpiredPayload) error {
	return f.record("expired")
}
func (f *fakeSender) StockLow(context.Context, orders.StockLowPayload) error {
	return f.record("stock_low")
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func envelope(t *testing.T, eventType string, payload any) orders.Envelope {
	t.Helper()
	ev, err := orders.NewEnvelope(eventType, "premium-store", "o1", payload, time.Now())
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return ev
}

func TestHandleDispatchesOncePerEvent(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := &Service{Sender: sender, Dedup: redisx.NewMemoryClaimer()}

	ev := envelope(t, orders.EventOrderFulfilled, orders.OrderFulfilledPayload{OrderID: "o1", UserID: "42", Secret: "user:pass"})
	for i := 0; i < 3; i++ {
		if err := svc.Handle(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if sender.count() != 1 {
		t.Fatalf("expected one send, got %v", sender.calls)
	}
	if sender.delivered[0].Secret != "user:pass" {
		t.Fatalf("payload not decoded: %+v", sender.delivered[0])
	}

	if err := svc.Handle(ctx, envelope(t, orders.EventRestocked, orders.RestockedPayload{})); err != nil {
		t.Fatalf("restocked should be ignored, got %v", err)
	}
}

func TestHandleFailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{fail: errors.New("telegram down")}
	svc := &Service{Sender: sender, Dedup: redisx.NewMemoryClaimer()}

	ev := envelope(t, orders.EventOrderExpired, orders.OrderExpiredPayload{OrderID: "o1", Reason: orders.ReasonTimeout})
	if err := svc.Handle(ctx, ev); err == nil {
		t.Fatalf("expected send error")
	}
	sender.fail = nil
	if err := svc.Handle(ctx, ev); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if sender.count() != 2 {
		t.Fatalf("expected retry to reach the sender, got %v", sender.calls)
	}
}

func TestHandleMessageDecodesKafkaValue(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := &Service{Sender: sender}

	ev := envelope(t, orders.EventProofSubmitted, orders.ProofSubmittedPayload{OrderID: "o1"})
	m, err := kafkax.Message(ctx, ev)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := svc.HandleMessage(ctx, m); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if sender.count() != 1 || sender.calls[0] != "proof" {
		t.Fatalf("unexpected calls %v", sender.calls)
	}
	m.Value = []byte("{not json")
	if err := svc.HandleMessage(ctx, m); err != nil {
		t.Fatalf("malformed message should be dropped, got %v", err)
	}
}

func TestLocalDeliversInOrder(t *testing.T) {
	sender := &fakeSender{}
	l := NewLocal(&Service{Sender: sender}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = l.Run(ctx); close(done) }()

	_ = l.Publish(ctx, envelope(t, orders.EventOrderReserved, orders.OrderReservedPayload{OrderID: "o1"}))
	_ = l.Publish(ctx, envelope(t, orders.EventProofSubmitted, orders.ProofSubmittedPayload{OrderID: "o1"}))
	cancel()
	<-done

	if len(sender.calls) != 2 || sender.calls[0] != "payment" || sender.calls[1] != "proof" {
		t.Fatalf("unexpected calls %v", sender.calls)
	}
}

func TestLocalRefusesEventsAfterShutdown(t *testing.T) {
	sender := &fakeSender{}
	l := NewLocal(&Service{Sender: sender}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = l.Run(ctx); close(done) }()
	cancel()
	<-done

	err := l.Publish(context.Background(), envelope(t, orders.EventOrderFulfilled, orders.OrderFulfilledPayload{OrderID: "o1"}))
	if !errors.Is(err, orders.ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
	if sender.count() != 0 {
		t.Fatalf("unexpected calls %v", sender.calls)
	}
}

func TestLocalShutdownReleasesBlockedPublish(t *testing.T) {
	l := NewLocal(&Service{Sender: &fakeSender{}}, 1)
	ctx := context.Background()
	if err := l.Publish(ctx, envelope(t, orders.EventOrderReserved, orders.OrderReservedPayload{OrderID: "o1"})); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	// inbox penuh dan Run belum jalan: publish kedua menunggu
	second := envelope(t, orders.EventOrderExpired, orders.OrderExpiredPayload{OrderID: "o1"})
	blocked := make(chan error, 1)
	go func() { blocked <- l.Publish(ctx, second) }()

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := l.Run(runCtx); err != nil {
		t.Fatalf("run: %v", err)
	}
	select {
	case err := <-blocked:
		// bisa masuk sebelum inbox dikuras, atau ditolak; tidak boleh hilang diam-diam
		if err != nil && !errors.Is(err, orders.ErrPublisherClosed) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("publish still blocked after shutdown")
	}
}
