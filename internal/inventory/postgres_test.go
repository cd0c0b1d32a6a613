package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/postgres"
	"github.com/ariefcatur/go-premium-store/internal/shop"
)

// pgStore connects to POSTGRES_TEST_DSN; the test is skipped without it.
func pgStore(t *testing.T) (*PGStore, shop.PackageKey) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := &PGStore{DB: db}
	productID := fmt.Sprintf("p-%d", time.Now().UnixNano())
	key := shop.PackageKey{ProductID: productID, PackageID: "1m"}
	if err := s.AddProduct(ctx, Product{ID: productID, Name: "Netflix"}); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if err := s.AddPackage(ctx, Package{Key: key, Price: 1000}); err != nil {
		t.Fatalf("add package: %v", err)
	}
	return s, key
}

func TestPGReserveLifecycle(t *testing.T) {
	s, key := pgStore(t)
	ctx := context.Background()

	if err := s.AddPackage(ctx, Package{Key: key, Price: 1}); !errors.Is(err, shop.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := s.AddCredentials(ctx, key, []string{"a", "b"}); err != nil {
		t.Fatalf("restock: %v", err)
	}
	c, err := s.ReserveCredential(ctx, key, "o1")
	if err != nil || c.Secret != "a" {
		t.Fatalf("expected FIFO credential a, got %+v %v", c, err)
	}
	if err := s.ReleaseCredential(ctx, c.ID, c.HolderID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.ReleaseCredential(ctx, c.ID, c.HolderID); err != nil {
		t.Fatalf("second release: %v", err)
	}
	c, _ = s.ReserveCredential(ctx, key, "o2")
	if err := s.ReleaseCredential(ctx, c.ID, "o1"); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if got, _ := s.GetCredential(ctx, c.ID); got.Status != StatusReserved || got.HolderID != "o2" {
		t.Fatalf("stale holder freed the reservation: %+v", got)
	}
	if err := s.SetPrice(ctx, key, 4000); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if _, err := s.DeliverCredential(ctx, c.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := s.DeliverCredential(ctx, c.ID); !errors.Is(err, shop.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	rep, err := s.StockReport(ctx, key.ProductID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	ps := rep.Packages[0]
	if ps.Available != 1 || ps.Delivered != 1 || ps.Revenue != 1000 {
		t.Fatalf("unexpected stock: %+v", ps)
	}
}

func TestPGConcurrentReserveSingleWinner(t *testing.T) {
	s, key := pgStore(t)
	ctx := context.Background()
	if _, err := s.AddCredentials(ctx, key, []string{"only"}); err != nil {
		t.Fatalf("restock: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ReserveCredential(ctx, key, fmt.Sprintf("o%d", i))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, shop.ErrOutOfStock):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
