package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/inventory"
	"github.com/ariefcatur/go-premium-store/internal/shop"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ariefcatur/go-premium-store/internal/orders"

type Options struct {
	PaymentWindow time.Duration
	AdminIDs      []string
	// LowStockThreshold: StockLow is published when availability drops to
	// this value or below after a reservation. Negative disables it.
	LowStockThreshold int
	ServiceName       string
	Publisher         Publisher
	Logger            *zap.Logger
	Clock             func() time.Time
	NewID             func() string
}

// Coordinator drives orders through their states and is the only caller of
// the inventory pool operations.
type Coordinator struct {
	inv      inventory.Store
	repo     Repo
	pub      Publisher
	admins   map[string]struct{}
	window   time.Duration
	lowStock int
	service  string
	now      func() time.Time
	newID    func() string
	log      *zap.Logger
	tracer   trace.Tracer
}

func NewCoordinator(inv inventory.Store, repo Repo, opt Options) *Coordinator {
	c := &Coordinator{
		inv:      inv,
		repo:     repo,
		pub:      opt.Publisher,
		admins:   make(map[string]struct{}, len(opt.AdminIDs)),
		window:   opt.PaymentWindow,
		lowStock: opt.LowStockThreshold,
		service:  opt.ServiceName,
		now:      opt.Clock,
		newID:    opt.NewID,
		log:      opt.Logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, id := range opt.AdminIDs {
		c.admins[id] = struct{}{}
	}
	if c.window <= 0 {
		c.window = 30 * time.Minute
	}
	if c.service == "" {
		c.service = "premium-store"
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.pub == nil {
		c.pub = LogPublisher{Log: c.log}
	}
	return c
}

func (c *Coordinator) PaymentWindow() time.Duration { return c.window }

func (c *Coordinator) IsAdmin(id string) bool {
	_, ok := c.admins[id]
	return ok && id != ""
}

func (c *Coordinator) authorize(adminID string) error {
	if !c.IsAdmin(adminID) {
		return fmt.Errorf("user %q is not an admin: %w", adminID, shop.ErrUnauthorized)
	}
	return nil
}

func (c *Coordinator) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ---- queries ----

func (c *Coordinator) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	return c.inv.ListProducts(ctx)
}

func (c *Coordinator) GetProduct(ctx context.Context, productID string) (inventory.Product, error) {
	return c.inv.GetProduct(ctx, productID)
}

func (c *Coordinator) ListPackages(ctx context.Context, productID string) ([]inventory.PackageAvailability, error) {
	return c.inv.ListAvailablePackages(ctx, productID)
}

// GetOrder returns the order after applying a due expiry.
func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return c.load(ctx, orderID)
}

func (c *Coordinator) ListUserOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	list, err := c.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	now := c.now()
	for i, o := range list {
		if o.dueAt(now) {
			if fresh, err := c.load(ctx, o.ID); err == nil {
				list[i] = fresh
			}
		}
	}
	return list, nil
}

// ---- buyer commands ----

// OpenOrder starts an order in SELECTING. An empty orderID gets a new uuid.
func (c *Coordinator) OpenOrder(ctx context.Context, orderID, userID string) (Order, error) {
	if userID == "" {
		return Order{}, fmt.Errorf("user id required: %w", shop.ErrInvalidInput)
	}
	if orderID == "" {
		orderID = c.newID()
	}
	now := c.now().UTC()
	o := Order{ID: orderID, UserID: userID, State: StateSelecting, CreatedAt: now, UpdatedAt: now}
	if err := c.repo.Create(ctx, o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// CreateOrder opens an order and reserves a credential of key. When the
// package is sold out the order stays SELECTING and shop.ErrOutOfStock is
// returned together with it.
func (c *Coordinator) CreateOrder(ctx context.Context, userID string, key shop.PackageKey) (Order, error) {
	o, err := c.OpenOrder(ctx, "", userID)
	if err != nil {
		return Order{}, err
	}
	return c.Select(ctx, o.ID, userID, key)
}

// Select reserves one credential of key for a SELECTING order.
func (c *Coordinator) Select(ctx context.Context, orderID, userID string, key shop.PackageKey) (_ Order, err error) {
	ctx, span := c.span(ctx, "orders.select",
		attribute.String("order.id", orderID),
		attribute.String("package.product_id", key.ProductID),
		attribute.String("package.id", key.PackageID))
	defer func() { endSpan(span, err) }()

	if err := shop.Validate(key); err != nil {
		return Order{}, err
	}
	o, err := c.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := owns(o, userID); err != nil {
		return o, err
	}
	if o.State != StateSelecting {
		return o, fmt.Errorf("select on %s order %s: %w", o.State, o.ID, shop.ErrInvalidTransition)
	}
	pkg, err := c.inv.GetPackage(ctx, key)
	if err != nil {
		return o, err
	}
	if pkg.Archived {
		return o, fmt.Errorf("package %s archived: %w", key, shop.ErrNotFound)
	}

	cred, err := c.inv.ReserveCredential(ctx, key, o.ID)
	if err != nil {
		if errors.Is(err, shop.ErrOutOfStock) {
			c.log.Info("out of stock", zap.String("order_id", o.ID), zap.String("package", key.String()))
		}
		return o, err
	}

	now := c.now().UTC()
	exp := now.Add(c.window)
	next := o
	next.Package = key
	next.Price = cred.SoldPrice
	next.CredentialID = &cred.ID
	next.State = StateAwaitingProof
	next.UpdatedAt = now
	next.ExpiresAt = &exp
	if err := c.repo.Transition(ctx, next, StateSelecting); err != nil {
		// order berubah di tengah jalan (mis. dibatalkan); reservasi harus dilepas
		c.release(ctx, cred.ID, o.ID)
		return o, err
	}

	c.log.Info("order reserved",
		zap.String("order_id", next.ID),
		zap.String("user_id", next.UserID),
		zap.String("package", key.String()),
		zap.Int64("credential_id", cred.ID),
		zap.Time("expires_at", exp))
	c.publish(ctx, EventOrderReserved, next.ID, OrderReservedPayload{
		OrderID:   next.ID,
		UserID:    next.UserID,
		ProductID: key.ProductID,
		PackageID: key.PackageID,
		Price:     next.Price,
		ExpiresAt: exp,
	})
	c.checkLowStock(ctx, key)
	return next, nil
}

// SubmitProof records that the buyer claims to have paid.
func (c *Coordinator) SubmitProof(ctx context.Context, orderID, userID, proofRef string) (_ Order, err error) {
	ctx, span := c.span(ctx, "orders.submit_proof", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	o, err := c.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := owns(o, userID); err != nil {
		return o, err
	}
	if o.State != StateAwaitingProof {
		return o, fmt.Errorf("submit proof on %s order %s: %w", o.State, o.ID, shop.ErrInvalidTransition)
	}
	next := o
	next.State = StatePendingVerification
	next.ProofRef = proofRef
	next.UpdatedAt = c.now().UTC()
	if err := c.repo.Transition(ctx, next, StateAwaitingProof); err != nil {
		return o, err
	}

	c.log.Info("proof submitted", zap.String("order_id", next.ID), zap.String("user_id", next.UserID))
	c.publish(ctx, EventProofSubmitted, next.ID, ProofSubmittedPayload{
		OrderID:   next.ID,
		UserID:    next.UserID,
		ProductID: next.Package.ProductID,
		PackageID: next.Package.PackageID,
		Price:     next.Price,
		ProofRef:  proofRef,
		ExpiresAt: *next.ExpiresAt,
	})
	return next, nil
}

// Cancel ends a SELECTING or AWAITING_PROOF order and frees its credential.
func (c *Coordinator) Cancel(ctx context.Context, orderID, userID string) (_ Order, err error) {
	ctx, span := c.span(ctx, "orders.cancel", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	o, err := c.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := owns(o, userID); err != nil {
		return o, err
	}
	if o.State != StateSelecting && o.State != StateAwaitingProof {
		return o, fmt.Errorf("cancel on %s order %s: %w", o.State, o.ID, shop.ErrInvalidTransition)
	}
	return c.expire(ctx, o, ReasonCancelled, "", "")
}

// ---- admin commands ----

// AdminApprove delivers the reserved credential and returns its secret.
func (c *Coordinator) AdminApprove(ctx context.Context, orderID, adminID string) (_ Delivery, err error) {
	ctx, span := c.span(ctx, "orders.approve", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if err := c.authorize(adminID); err != nil {
		return Delivery{}, err
	}
	o, err := c.load(ctx, orderID)
	if err != nil {
		return Delivery{}, err
	}
	if o.State != StatePendingVerification {
		return Delivery{}, fmt.Errorf("approve on %s order %s: %w", o.State, o.ID, shop.ErrInvalidTransition)
	}

	now := c.now().UTC()
	next := o
	next.State = StateFulfilled
	next.UpdatedAt = now
	next.ResolvedAt = &now
	if err := c.repo.Transition(ctx, next, StatePendingVerification); err != nil {
		return Delivery{}, err
	}

	// state sudah FULFILLED; kalau deliver gagal di sini, sweeper yang menyelesaikan
	cred, err := c.inv.DeliverCredential(ctx, *o.CredentialID)
	if err != nil {
		c.log.Error("deliver credential failed, left for sweeper",
			zap.String("order_id", o.ID), zap.Int64("credential_id", *o.CredentialID), zap.Error(err))
		return Delivery{}, fmt.Errorf("deliver credential: %w", err)
	}
	if err := c.repo.MarkSettled(ctx, o.ID); err != nil {
		c.log.Warn("mark settled failed", zap.String("order_id", o.ID), zap.Error(err))
	} else {
		next.Settled = true
	}

	c.log.Info("order fulfilled",
		zap.String("order_id", o.ID), zap.String("admin_id", adminID), zap.Int64("credential_id", cred.ID))
	c.publishFulfilled(ctx, next, adminID, cred.Secret)
	return Delivery{Order: next, Secret: cred.Secret}, nil
}

// AdminReject ends a PENDING_VERIFICATION order and returns its credential to the pool.
func (c *Coordinator) AdminReject(ctx context.Context, orderID, adminID, note string) (_ Order, err error) {
	ctx, span := c.span(ctx, "orders.reject", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if err := c.authorize(adminID); err != nil {
		return Order{}, err
	}
	o, err := c.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.State != StatePendingVerification {
		return o, fmt.Errorf("reject on %s order %s: %w", o.State, o.ID, shop.ErrInvalidTransition)
	}
	return c.expire(ctx, o, ReasonRejected, adminID, note)
}

// PendingOrders lists orders waiting for an admin decision.
func (c *Coordinator) PendingOrders(ctx context.Context, adminID string) ([]Order, error) {
	if err := c.authorize(adminID); err != nil {
		return nil, err
	}
	list, err := c.repo.ListByState(ctx, StatePendingVerification)
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := list[:0]
	for _, o := range list {
		if o.dueAt(now) {
			if _, err := c.load(ctx, o.ID); err != nil {
				c.log.Warn("expire pending order failed, left for sweeper", zap.String("order_id", o.ID), zap.Error(err))
			}
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (c *Coordinator) AddProduct(ctx context.Context, adminID string, p inventory.Product) error {
	if err := c.authorize(adminID); err != nil {
		return err
	}
	return c.inv.AddProduct(ctx, p)
}

func (c *Coordinator) UpdateProduct(ctx context.Context, adminID string, p inventory.Product) error {
	if err := c.authorize(adminID); err != nil {
		return err
	}
	return c.inv.UpdateProduct(ctx, p)
}

func (c *Coordinator) AddPackage(ctx context.Context, adminID string, p inventory.Package) error {
	if err := c.authorize(adminID); err != nil {
		return err
	}
	return c.inv.AddPackage(ctx, p)
}

func (c *Coordinator) SetPrice(ctx context.Context, adminID string, key shop.PackageKey, price int64) error {
	if err := c.authorize(adminID); err != nil {
		return err
	}
	return c.inv.SetPrice(ctx, key, price)
}

// DeletePackage archives a package. Refused while any non-terminal order
// references it.
func (c *Coordinator) DeletePackage(ctx context.Context, adminID string, key shop.PackageKey) error {
	if err := c.authorize(adminID); err != nil {
		return err
	}
	open, err := c.repo.HasOpenForPackage(ctx, key)
	if err != nil {
		return err
	}
	if open {
		return fmt.Errorf("package %s has open orders: %w", key, shop.ErrInvalidTransition)
	}
	return c.inv.ArchivePackage(ctx, key)
}

func (c *Coordinator) Restock(ctx context.Context, adminID string, key shop.PackageKey, secrets []string) (_ int, err error) {
	ctx, span := c.span(ctx, "orders.restock",
		attribute.String("package.product_id", key.ProductID),
		attribute.String("package.id", key.PackageID))
	defer func() { endSpan(span, err) }()

	if err := c.authorize(adminID); err != nil {
		return 0, err
	}
	n, err := c.inv.AddCredentials(ctx, key, secrets)
	if err != nil {
		return 0, err
	}
	avail, _ := c.available(ctx, key)
	span.SetAttributes(attribute.Int("inventory.added", n), attribute.Int("inventory.available", avail))
	c.log.Info("restocked", zap.String("package", key.String()), zap.Int("added", n), zap.Int("available", avail))
	c.publish(ctx, EventRestocked, key.String(), RestockedPayload{
		ProductID: key.ProductID,
		PackageID: key.PackageID,
		Added:     n,
		Available: avail,
		AdminID:   adminID,
	})
	return n, nil
}

func (c *Coordinator) StockReport(ctx context.Context, adminID, productID string) (inventory.StockReport, error) {
	if err := c.authorize(adminID); err != nil {
		return inventory.StockReport{}, err
	}
	return c.inv.StockReport(ctx, productID)
}

// ---- internals ----

func owns(o Order, userID string) error {
	if userID != "" && o.UserID != userID {
		return fmt.Errorf("order %s belongs to another user: %w", o.ID, shop.ErrUnauthorized)
	}
	return nil
}

// load reads an order and expires it first when its payment window is over.
func (c *Coordinator) load(ctx context.Context, orderID string) (Order, error) {
	o, err := c.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !o.dueAt(c.now()) {
		return o, nil
	}
	expired, err := c.expire(ctx, o, ReasonTimeout, "", "")
	if errors.Is(err, shop.ErrInvalidTransition) {
		// sudah dipindah oleh proses lain (sweeper / admin), baca ulang
		return c.repo.Get(ctx, orderID)
	}
	return expired, err
}

// expire moves o to EXPIRED and releases its credential.
func (c *Coordinator) expire(ctx context.Context, o Order, reason, adminID, note string) (Order, error) {
	now := c.now().UTC()
	next := o
	next.State = StateExpired
	next.Reason = reason
	next.UpdatedAt = now
	next.ResolvedAt = &now
	if err := c.repo.Transition(ctx, next, o.State); err != nil {
		return o, err
	}
	if err := c.settle(ctx, next); err != nil {
		c.log.Error("release after expiry failed, left for sweeper", zap.String("order_id", o.ID), zap.Error(err))
	} else {
		next.Settled = true
	}

	c.log.Info("order expired", zap.String("order_id", o.ID), zap.String("reason", reason), zap.String("from", string(o.State)))
	c.publish(ctx, EventOrderExpired, o.ID, OrderExpiredPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Reason:  reason,
		AdminID: adminID,
		Note:    note,
	})
	return next, nil
}

// settle resolves the credential of a terminal order: deliver for FULFILLED,
// release for EXPIRED. Safe to repeat.
func (c *Coordinator) settle(ctx context.Context, o Order) error {
	if o.CredentialID == nil {
		return c.repo.MarkSettled(ctx, o.ID)
	}
	id := *o.CredentialID
	switch o.State {
	case StateFulfilled:
		cred, err := c.inv.GetCredential(ctx, id)
		if err != nil {
			return err
		}
		if cred.Status == inventory.StatusReserved && cred.HolderID == o.ID {
			cred, err = c.inv.DeliverCredential(ctx, id)
			if err != nil {
				return err
			}
			// pembeli belum pernah menerima credential-nya
			c.publishFulfilled(ctx, o, "", cred.Secret)
		}
	case StateExpired:
		// hanya lepas kalau masih dipegang order ini; bisa jadi sudah di-reserve pembeli lain
		if err := c.inv.ReleaseCredential(ctx, id, o.ID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("settle on %s order %s: %w", o.State, o.ID, shop.ErrInvalidTransition)
	}
	return c.repo.MarkSettled(ctx, o.ID)
}

func (c *Coordinator) release(ctx context.Context, credID int64, orderID string) {
	if err := c.inv.ReleaseCredential(ctx, credID, orderID); err != nil {
		c.log.Error("release credential failed, left for sweeper",
			zap.String("order_id", orderID), zap.Int64("credential_id", credID), zap.Error(err))
	}
}

func (c *Coordinator) available(ctx context.Context, key shop.PackageKey) (int, error) {
	list, err := c.inv.ListAvailablePackages(ctx, key.ProductID)
	if err != nil {
		return 0, err
	}
	for _, a := range list {
		if a.Package.Key == key {
			return a.Available, nil
		}
	}
	return 0, nil
}

func (c *Coordinator) checkLowStock(ctx context.Context, key shop.PackageKey) {
	if c.lowStock < 0 {
		return
	}
	avail, err := c.available(ctx, key)
	if err != nil || avail > c.lowStock {
		return
	}
	c.publish(ctx, EventStockLow, key.String(), StockLowPayload{
		ProductID: key.ProductID,
		PackageID: key.PackageID,
		Available: avail,
	})
}

func (c *Coordinator) publishFulfilled(ctx context.Context, o Order, adminID, secret string) {
	remaining, _ := c.available(ctx, o.Package)
	c.publish(ctx, EventOrderFulfilled, o.ID, OrderFulfilledPayload{
		OrderID:   o.ID,
		UserID:    o.UserID,
		AdminID:   adminID,
		ProductID: o.Package.ProductID,
		PackageID: o.Package.PackageID,
		Price:     o.Price,
		Secret:    secret,
		Remaining: remaining,
	})
}

// publish never fails the command: state is already committed, events are
// notifications.
func (c *Coordinator) publish(ctx context.Context, eventType, correlationID string, payload any) {
	ev, err := NewEnvelope(eventType, c.service, correlationID, payload, c.now())
	if err != nil {
		c.log.Error("encode event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	if err := c.pub.Publish(ctx, ev); err != nil {
		if errors.Is(err, ErrPublisherClosed) {
			c.log.Error("event dropped during shutdown",
				zap.String("event_type", eventType), zap.String("correlation_id", correlationID))
			return
		}
		c.log.Warn("publish event failed",
			zap.String("event_type", eventType), zap.String("correlation_id", correlationID), zap.Error(err))
	}
}
