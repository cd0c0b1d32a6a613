package inventory

import (
	"context"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

// Store is the single source of truth for catalog and credential pools.
// Every mutation of one package's pool is serialized; different packages
// proceed independently.
type Store interface {
	AddProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	AddPackage(ctx context.Context, p Package) error
	GetPackage(ctx context.Context, key shop.PackageKey) (Package, error)
	SetPrice(ctx context.Context, key shop.PackageKey, price int64) error
	// ArchivePackage hides the package from listings and reservation.
	// Credentials are kept for audit.
	ArchivePackage(ctx context.Context, key shop.PackageKey) error
	ListAvailablePackages(ctx context.Context, productID string) ([]PackageAvailability, error)

	AddCredentials(ctx context.Context, key shop.PackageKey, secrets []string) (int, error)
	// ReserveCredential takes the oldest available credential (FIFO) or
	// fails fast with shop.ErrOutOfStock. The package price at this moment
	// is recorded as the credential's SoldPrice.
	ReserveCredential(ctx context.Context, key shop.PackageKey, holderID string) (Credential, error)
	// ReleaseCredential returns the credential to the pool only while holderID
	// still holds it; otherwise it is a no-op.
	ReleaseCredential(ctx context.Context, id int64, holderID string) error
	DeliverCredential(ctx context.Context, id int64) (Credential, error)
	GetCredential(ctx context.Context, id int64) (Credential, error)
	// ListReserved returns credentials reserved at or before the cutoff.
	ListReserved(ctx context.Context, reservedBefore time.Time) ([]Credential, error)

	StockReport(ctx context.Context, productID string) (StockReport, error)
}
