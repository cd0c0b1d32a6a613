package orders

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/inventory"
	"github.com/ariefcatur/go-premium-store/internal/shop"
	"go.uber.org/zap"
)

// Reservations younger than this are skipped by the orphan scan: the order
// that took them may still be committing its transition.
const reservationGrace = time.Minute

type SweepResult struct {
	Expired  int `json:"expired"`
	Settled  int `json:"settled"`
	Released int `json:"released"`
}

func (r SweepResult) Empty() bool { return r.Expired == 0 && r.Settled == 0 && r.Released == 0 }

// Sweep expires orders past their payment window, finishes terminal orders
// whose credential was left unresolved and releases reservations no live
// order holds.
func (c *Coordinator) Sweep(ctx context.Context) (res SweepResult, err error) {
	ctx, span := c.span(ctx, "orders.sweep")
	defer func() { endSpan(span, err) }()

	var errs []error
	now := c.now()

	due, err := c.repo.ListDue(ctx, now)
	if err != nil {
		return res, err
	}
	for _, o := range due {
		if _, err := c.expire(ctx, o, ReasonTimeout, "", ""); err != nil {
			if !errors.Is(err, shop.ErrInvalidTransition) {
				errs = append(errs, err)
			}
			continue
		}
		res.Expired++
	}

	unsettled, err := c.repo.ListUnsettled(ctx)
	if err != nil {
		return res, errors.Join(append(errs, err)...)
	}
	for _, o := range unsettled {
		if err := c.settle(ctx, o); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Settled++
	}

	reserved, err := c.inv.ListReserved(ctx, now.Add(-reservationGrace))
	if err != nil {
		return res, errors.Join(append(errs, err)...)
	}
	for _, cred := range reserved {
		released, err := c.reconcile(ctx, cred)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if released {
			res.Released++
		}
	}

	if !res.Empty() {
		c.log.Info("sweep done",
			zap.Int("expired", res.Expired), zap.Int("settled", res.Settled), zap.Int("released", res.Released))
	}
	return res, errors.Join(errs...)
}

// reconcile releases cred unless a holding order still references it.
func (c *Coordinator) reconcile(ctx context.Context, cred inventory.Credential) (bool, error) {
	o, err := c.repo.Get(ctx, cred.HolderID)
	switch {
	case errors.Is(err, shop.ErrNotFound):
	case err != nil:
		return false, err
	case o.CredentialID == nil || *o.CredentialID != cred.ID:
	case o.State.Holding():
		return false, nil
	default:
		// terminal tapi belum beres; settle yang memutuskan deliver/release
		return o.State == StateExpired, c.settle(ctx, o)
	}
	c.log.Warn("releasing orphaned reservation",
		zap.Int64("credential_id", cred.ID), zap.String("holder_id", cred.HolderID))
	if err := c.inv.ReleaseCredential(ctx, cred.ID, cred.HolderID); err != nil {
		return false, err
	}
	return true, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := c.Sweep(ctx); err != nil && ctx.Err() == nil {
				c.log.Error("sweep", zap.Error(err))
			}
		}
	}
}
