package inventory

import (
	"time"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

type CredentialStatus string

const (
	StatusAvailable CredentialStatus = "available"
	StatusReserved  CredentialStatus = "reserved"
	StatusDelivered CredentialStatus = "delivered"
)

type Product struct {
	ID          string    `json:"id" validate:"required,max=64"`
	Name        string    `json:"name" validate:"required,max=128"`
	Category    string    `json:"category" validate:"max=64"`
	Description string    `json:"description" validate:"max=1024"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Package is a priced variant of a product. Price is in the smallest
// currency unit. Stock is never stored here; it is counted from the pool.
type Package struct {
	Key       shop.PackageKey `json:"key"`
	Name      string          `json:"name" validate:"max=128"`
	Price     int64           `json:"price" validate:"gt=0"`
	Archived  bool            `json:"archived"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Credential struct {
	ID          int64            `json:"id"`
	Package     shop.PackageKey  `json:"package"`
	Secret      string           `json:"-"`
	Status      CredentialStatus `json:"status"`
	HolderID    string           `json:"holder_id,omitempty"` // order yang memegang reservasi
	SoldPrice   int64            `json:"sold_price,omitempty"` // harga paket saat di-reserve
	CreatedAt   time.Time        `json:"created_at"`
	ReservedAt  *time.Time       `json:"reserved_at,omitempty"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
}

type PackageAvailability struct {
	Package   Package `json:"package"`
	Available int     `json:"available"`
}

type PackageStock struct {
	Package   Package `json:"package"`
	Available int     `json:"available"`
	Reserved  int     `json:"reserved"`
	Delivered int     `json:"delivered"`
	Revenue   int64   `json:"revenue"` // sum of SoldPrice over delivered credentials
}

// Total is every credential ever added to the package.
func (s PackageStock) Total() int { return s.Available + s.Reserved + s.Delivered }

type StockReport struct {
	Product  Product        `json:"product"`
	Packages []PackageStock `json:"packages"`
}
