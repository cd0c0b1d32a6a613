package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

// Repo stores orders. Transition is a compare-and-set on the state column so
// that concurrent commands on one order cannot both win.
type Repo interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	// Transition persists next only when the stored state still equals from
	// and from -> next.State is allowed. Otherwise shop.ErrInvalidTransition.
	Transition(ctx context.Context, next Order, from State) error
	MarkSettled(ctx context.Context, id string) error

	// ListDue returns holding orders whose payment window ended at or before now.
	ListDue(ctx context.Context, now time.Time) ([]Order, error)
	// ListUnsettled returns terminal orders whose credential is not resolved yet.
	ListUnsettled(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	ListByState(ctx context.Context, state State) ([]Order, error)
	HasOpenForPackage(ctx context.Context, key shop.PackageKey) (bool, error)
}
