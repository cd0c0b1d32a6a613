package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

type MemoryRepo struct {
	mu sync.RWMutex
	m  map[string]Order
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{m: make(map[string]Order)}
}

func (r *MemoryRepo) Create(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, shop.ErrDuplicateID)
	}
	r.m[o.ID] = o
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[id]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", id, shop.ErrNotFound)
	}
	return o, nil
}

func (r *MemoryRepo) Transition(_ context.Context, next Order, from State) error {
	if !CanTransition(from, next.State) {
		return fmt.Errorf("order %s %s -> %s: %w", next.ID, from, next.State, shop.ErrInvalidTransition)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.m[next.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", next.ID, shop.ErrNotFound)
	}
	if cur.State != from {
		return fmt.Errorf("order %s is %s, not %s: %w", next.ID, cur.State, from, shop.ErrInvalidTransition)
	}
	r.m[next.ID] = next
	return nil
}

func (r *MemoryRepo) MarkSettled(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.m[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, shop.ErrNotFound)
	}
	o.Settled = true
	r.m[id] = o
	return nil
}

func (r *MemoryRepo) filter(keep func(Order) bool) []Order {
	r.mu.RLock()
	out := make([]Order, 0)
	for _, o := range r.m {
		if keep(o) {
			out = append(out, o)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryRepo) ListDue(_ context.Context, now time.Time) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.dueAt(now) }), nil
}

func (r *MemoryRepo) ListUnsettled(_ context.Context) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.State.Terminal() && !o.Settled }), nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID string, limit int) ([]Order, error) {
	out := r.filter(func(o Order) bool { return o.UserID == userID })
	// terbaru dulu
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListByState(_ context.Context, state State) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.State == state }), nil
}

func (r *MemoryRepo) HasOpenForPackage(_ context.Context, key shop.PackageKey) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.m {
		if o.Package == key && !o.State.Terminal() {
			return true, nil
		}
	}
	return false, nil
}
