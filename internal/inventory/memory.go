package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

// pool holds one package and its credentials in insertion order.
// mu serializes every read and write of the pool.
type pool struct {
	mu    sync.Mutex
	pkg   Package
	creds []*Credential
}

func (p *pool) countLocked() (avail, reserved, delivered int) {
	for _, c := range p.creds {
		switch c.Status {
		case StatusAvailable:
			avail++
		case StatusReserved:
			reserved++
		case StatusDelivered:
			delivered++
		}
	}
	return
}

// MemoryStore keeps everything in process. Lock order: s.mu before pool.mu,
// and s.mu is never held while waiting on a pool.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]Product
	pools    map[shop.PackageKey]*pool
	byCred   map[int64]*pool

	seq atomic.Int64
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]Product),
		pools:    make(map[shop.PackageKey]*pool),
		byCred:   make(map[int64]*pool),
		now:      time.Now,
	}
}

// WithClock replaces the time source (tests).
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) AddProduct(_ context.Context, p Product) error {
	if err := shop.Validate(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return fmt.Errorf("product %s: %w", p.ID, shop.ErrDuplicateID)
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = p
	return nil
}

func (s *MemoryStore) UpdateProduct(_ context.Context, p Product) error {
	if err := shop.Validate(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[p.ID]
	if !ok {
		return fmt.Errorf("product %s: %w", p.ID, shop.ErrNotFound)
	}
	cur.Name, cur.Category, cur.Description = p.Name, p.Category, p.Description
	cur.UpdatedAt = s.now().UTC()
	s.products[p.ID] = cur
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %s: %w", id, shop.ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]Product, error) {
	s.mu.RLock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AddPackage(_ context.Context, p Package) error {
	if err := shop.Validate(p); err != nil {
		return err
	}
	if err := shop.Validate(p.Key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.Key.ProductID]; !ok {
		return fmt.Errorf("product %s: %w", p.Key.ProductID, shop.ErrNotFound)
	}
	if _, ok := s.pools[p.Key]; ok {
		return fmt.Errorf("package %s: %w", p.Key, shop.ErrDuplicateID)
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Archived = false
	s.pools[p.Key] = &pool{pkg: p}
	return nil
}

func (s *MemoryStore) pool(key shop.PackageKey) (*pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pl, ok := s.pools[key]
	if !ok {
		return nil, fmt.Errorf("package %s: %w", key, shop.ErrNotFound)
	}
	return pl, nil
}

func (s *MemoryStore) credPool(id int64) (*pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pl, ok := s.byCred[id]
	if !ok {
		return nil, fmt.Errorf("credential %d: %w", id, shop.ErrNotFound)
	}
	return pl, nil
}

func (s *MemoryStore) GetPackage(_ context.Context, key shop.PackageKey) (Package, error) {
	pl, err := s.pool(key)
	if err != nil {
		return Package{}, err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.pkg, nil
}

func (s *MemoryStore) SetPrice(_ context.Context, key shop.PackageKey, price int64) error {
	if price <= 0 {
		return fmt.Errorf("price %d: %w", price, shop.ErrInvalidInput)
	}
	pl, err := s.pool(key)
	if err != nil {
		return err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.pkg.Price = price
	pl.pkg.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) ArchivePackage(_ context.Context, key shop.PackageKey) error {
	pl, err := s.pool(key)
	if err != nil {
		return err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if _, reserved, _ := pl.countLocked(); reserved > 0 {
		return fmt.Errorf("package %s has %d reserved credentials: %w", key, reserved, shop.ErrInvalidTransition)
	}
	pl.pkg.Archived = true
	pl.pkg.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) ListAvailablePackages(_ context.Context, productID string) ([]PackageAvailability, error) {
	s.mu.RLock()
	if _, ok := s.products[productID]; !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("product %s: %w", productID, shop.ErrNotFound)
	}
	pools := make([]*pool, 0)
	for k, pl := range s.pools {
		if k.ProductID == productID {
			pools = append(pools, pl)
		}
	}
	s.mu.RUnlock()

	out := make([]PackageAvailability, 0, len(pools))
	for _, pl := range pools {
		pl.mu.Lock()
		if !pl.pkg.Archived {
			avail, _, _ := pl.countLocked()
			out = append(out, PackageAvailability{Package: pl.pkg, Available: avail})
		}
		pl.mu.Unlock()
	}
	sortAvailability(out)
	return out, nil
}

func sortAvailability(out []PackageAvailability) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Package.Price != out[j].Package.Price {
			return out[i].Package.Price < out[j].Package.Price
		}
		return out[i].Package.Key.PackageID < out[j].Package.Key.PackageID
	})
}

func (s *MemoryStore) AddCredentials(_ context.Context, key shop.PackageKey, secrets []string) (int, error) {
	clean := cleanSecrets(secrets)
	if len(clean) == 0 {
		return 0, fmt.Errorf("no secrets: %w", shop.ErrInvalidInput)
	}
	pl, err := s.pool(key)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	added := make([]*Credential, 0, len(clean))
	for _, sec := range clean {
		added = append(added, &Credential{
			ID:        s.seq.Add(1),
			Package:   key,
			Secret:    sec,
			Status:    StatusAvailable,
			CreatedAt: now,
		})
	}

	// index dulu baru masuk pool, supaya credential yang sudah bisa di-reserve selalu bisa di-release
	s.mu.Lock()
	for _, c := range added {
		s.byCred[c.ID] = pl
	}
	s.mu.Unlock()

	// cek archived dan append dalam satu critical section dengan ArchivePackage
	pl.mu.Lock()
	if pl.pkg.Archived {
		pl.mu.Unlock()
		s.mu.Lock()
		for _, c := range added {
			delete(s.byCred, c.ID)
		}
		s.mu.Unlock()
		return 0, fmt.Errorf("package %s archived: %w", key, shop.ErrNotFound)
	}
	pl.creds = append(pl.creds, added...)
	pl.mu.Unlock()
	return len(added), nil
}

func cleanSecrets(secrets []string) []string {
	out := make([]string, 0, len(secrets))
	for _, sec := range secrets {
		if t := strings.TrimSpace(sec); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *MemoryStore) ReserveCredential(_ context.Context, key shop.PackageKey, holderID string) (Credential, error) {
	pl, err := s.pool(key)
	if err != nil {
		return Credential{}, err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.pkg.Archived {
		return Credential{}, fmt.Errorf("package %s archived: %w", key, shop.ErrNotFound)
	}
	// creds urut sesuai waktu ditambahkan, jadi yang pertama available = paling lama (FIFO)
	for _, c := range pl.creds {
		if c.Status != StatusAvailable {
			continue
		}
		now := s.now().UTC()
		c.Status = StatusReserved
		c.HolderID = holderID
		c.SoldPrice = pl.pkg.Price
		c.ReservedAt = &now
		return *c, nil
	}
	return Credential{}, fmt.Errorf("package %s: %w", key, shop.ErrOutOfStock)
}

func (p *pool) findLocked(id int64) *Credential {
	for _, c := range p.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *MemoryStore) ReleaseCredential(_ context.Context, id int64, holderID string) error {
	pl, err := s.credPool(id)
	if err != nil {
		return err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	c := pl.findLocked(id)
	if c == nil {
		return fmt.Errorf("credential %d: %w", id, shop.ErrNotFound)
	}
	if c.Status != StatusReserved || c.HolderID != holderID {
		return nil
	}
	c.Status = StatusAvailable
	c.HolderID = ""
	c.SoldPrice = 0
	c.ReservedAt = nil
	return nil
}

func (s *MemoryStore) DeliverCredential(_ context.Context, id int64) (Credential, error) {
	pl, err := s.credPool(id)
	if err != nil {
		return Credential{}, err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	c := pl.findLocked(id)
	if c == nil {
		return Credential{}, fmt.Errorf("credential %d: %w", id, shop.ErrNotFound)
	}
	if c.Status != StatusReserved {
		return Credential{}, fmt.Errorf("credential %d is %s: %w", id, c.Status, shop.ErrInvalidTransition)
	}
	now := s.now().UTC()
	c.Status = StatusDelivered
	c.DeliveredAt = &now
	return *c, nil
}

func (s *MemoryStore) GetCredential(_ context.Context, id int64) (Credential, error) {
	pl, err := s.credPool(id)
	if err != nil {
		return Credential{}, err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	c := pl.findLocked(id)
	if c == nil {
		return Credential{}, fmt.Errorf("credential %d: %w", id, shop.ErrNotFound)
	}
	return *c, nil
}

func (s *MemoryStore) ListReserved(_ context.Context, reservedBefore time.Time) ([]Credential, error) {
	s.mu.RLock()
	pools := make([]*pool, 0, len(s.pools))
	for _, pl := range s.pools {
		pools = append(pools, pl)
	}
	s.mu.RUnlock()

	var out []Credential
	for _, pl := range pools {
		pl.mu.Lock()
		for _, c := range pl.creds {
			if c.Status == StatusReserved && c.ReservedAt != nil && !c.ReservedAt.After(reservedBefore) {
				out = append(out, *c)
			}
		}
		pl.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) StockReport(_ context.Context, productID string) (StockReport, error) {
	s.mu.RLock()
	p, ok := s.products[productID]
	if !ok {
		s.mu.RUnlock()
		return StockReport{}, fmt.Errorf("product %s: %w", productID, shop.ErrNotFound)
	}
	var pools []*pool
	for k, pl := range s.pools {
		if k.ProductID == productID {
			pools = append(pools, pl)
		}
	}
	s.mu.RUnlock()

	rep := StockReport{Product: p, Packages: make([]PackageStock, 0, len(pools))}
	for _, pl := range pools {
		pl.mu.Lock()
		avail, reserved, delivered := pl.countLocked()
		var revenue int64
		for _, c := range pl.creds {
			if c.Status == StatusDelivered {
				revenue += c.SoldPrice
			}
		}
		rep.Packages = append(rep.Packages, PackageStock{
			Package:   pl.pkg,
			Available: avail,
			Reserved:  reserved,
			Delivered: delivered,
			Revenue:   revenue,
		})
		pl.mu.Unlock()
	}
	sort.Slice(rep.Packages, func(i, j int) bool {
		return rep.Packages[i].Package.Key.PackageID < rep.Packages[j].Package.Key.PackageID
	})
	return rep, nil
}
