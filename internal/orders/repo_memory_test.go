package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateSelecting, StateAwaitingProof, true},
		{StateSelecting, StateExpired, true},
		{StateSelecting, StateFulfilled, false},
		{StateAwaitingProof, StatePendingVerification, true},
		{StateAwaitingProof, StateFulfilled, false},
		{StatePendingVerification, StateFulfilled, true},
		{StatePendingVerification, StateExpired, true},
		{StateFulfilled, StateExpired, false},
		{StateExpired, StateAwaitingProof, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
	if _, err := ParseState("PAID"); !errors.Is(err, shop.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMemoryRepoTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	o := Order{ID: "o1", UserID: "u1", State: StatePendingVerification, CreatedAt: time.Now()}
	if err := r.Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Create(ctx, o); !errors.Is(err, shop.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, st := range []State{StateFulfilled, StateExpired} {
		wg.Add(1)
		go func(i int, st State) {
			defer wg.Done()
			next := o
			next.State = st
			errs[i] = r.Transition(ctx, next, StatePendingVerification)
		}(i, st)
	}
	wg.Wait()

	if (errs[0] == nil) == (errs[1] == nil) {
		t.Fatalf("expected exactly one winner, got %v / %v", errs[0], errs[1])
	}
	for _, err := range errs {
		if err != nil && !errors.Is(err, shop.ErrInvalidTransition) {
			t.Fatalf("loser should see ErrInvalidTransition, got %v", err)
		}
	}
}

func TestMemoryRepoListings(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := base.Add(time.Minute)
	key := shop.PackageKey{ProductID: "netflix", PackageID: "1m"}
	_ = r.Create(ctx, Order{ID: "a", UserID: "u1", State: StateAwaitingProof, Package: key, CreatedAt: base, ExpiresAt: &exp})
	_ = r.Create(ctx, Order{ID: "b", UserID: "u1", State: StateFulfilled, Package: key, CreatedAt: base.Add(time.Second)})
	_ = r.Create(ctx, Order{ID: "c", UserID: "u2", State: StateSelecting, CreatedAt: base.Add(2 * time.Second)})

	due, _ := r.ListDue(ctx, exp)
	if len(due) != 1 || due[0].ID != "a" {
		t.Fatalf("unexpected due list %+v", due)
	}
	unsettled, _ := r.ListUnsettled(ctx)
	if len(unsettled) != 1 || unsettled[0].ID != "b" {
		t.Fatalf("unexpected unsettled list %+v", unsettled)
	}
	_ = r.MarkSettled(ctx, "b")
	if unsettled, _ = r.ListUnsettled(ctx); len(unsettled) != 0 {
		t.Fatalf("settled order still listed")
	}
	mine, _ := r.ListByUser(ctx, "u1", 0)
	if len(mine) != 2 || mine[0].ID != "b" {
		t.Fatalf("expected newest first, got %+v", mine)
	}
	open, _ := r.HasOpenForPackage(ctx, key)
	if !open {
		t.Fatalf("expected open order on %s", key)
	}
}
