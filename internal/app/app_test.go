package app

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/config"
	"github.com/ariefcatur/go-premium-store/internal/inventory"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/redisx"
	"go.uber.org/zap"
)

type nopSender struct{}

func (nopSender) PaymentRequested(context.Context, orders.OrderReservedPayload) error { return nil }
func (nopSender) ProofReceived(context.Context, orders.ProofSubmittedPayload) error   { return nil }
func (nopSender) Delivered(context.Context, orders.OrderFulfilledPayload) error       { return nil }
func (nopSender) Expired(context.Context, orders.OrderExpiredPayload) error           { return nil }
func (nopSender) StockLow(context.Context, orders.StockLowPayload) error              { return nil }

func memConfig() config.Config {
	return config.Config{
		ServiceName:   "premium-store",
		PaymentWindow: time.Minute,
		AdminIDs:      []string{"1"},
		NotifierGroup: "test",
	}
}

func TestBuildInMemory(t *testing.T) {
	a, err := Build(context.Background(), memConfig(), zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	if _, ok := a.Inv.(*inventory.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", a.Inv)
	}
	if _, ok := a.Claimer.(*redisx.MemoryClaimer); !ok {
		t.Fatalf("expected memory claimer, got %T", a.Claimer)
	}
	if a.Producer != nil || a.Local != nil {
		t.Fatalf("no event transport expected")
	}
	if a.Coord.PaymentWindow() != time.Minute || !a.Coord.IsAdmin("1") {
		t.Fatalf("coordinator options not applied")
	}
}

func TestBuildLocalNotifier(t *testing.T) {
	a, err := Build(context.Background(), memConfig(), zap.NewNop(), nopSender{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if a.Local == nil {
		t.Fatalf("expected in-process notifier")
	}
}
