package orders

import (
	"time"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

type Order struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Package      shop.PackageKey `json:"package"`
	Price        int64           `json:"price"`
	CredentialID *int64          `json:"credential_id,omitempty"` // nil sampai reservasi sukses
	State        State           `json:"state"`
	Reason       string          `json:"reason,omitempty"`
	ProofRef     string          `json:"proof_ref,omitempty"`
	// Settled is true once the credential of a terminal order has been
	// delivered or released. The sweeper finishes unsettled ones.
	Settled    bool       `json:"settled"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (o Order) dueAt(now time.Time) bool {
	return o.State.Holding() && o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Delivery is what an approved order hands back to the buyer.
type Delivery struct {
	Order  Order  `json:"order"`
	Secret string `json:"secret"`
}
