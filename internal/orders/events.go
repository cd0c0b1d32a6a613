package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderReserved  = "OrderReserved"
	EventProofSubmitted = "ProofSubmitted"
	EventOrderFulfilled = "OrderFulfilled"
	EventOrderExpired   = "OrderExpired"
	EventStockLow       = "StockLow"
	EventRestocked      = "Restocked"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "premium-store"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id, atau product/package untuk event stok
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, correlationID string, payload any, at time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// ---- Payload tipe per event ----

type OrderReservedPayload struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	PackageID string    `json:"package_id"`
	Price     int64     `json:"price"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ProofSubmittedPayload struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	PackageID string    `json:"package_id"`
	Price     int64     `json:"price"`
	ProofRef  string    `json:"proof_ref,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OrderFulfilledPayload carries the secret because it is the delivery
// instruction for the messaging layer.
type OrderFulfilledPayload struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	AdminID   string `json:"admin_id"`
	ProductID string `json:"product_id"`
	PackageID string `json:"package_id"`
	Price     int64  `json:"price"`
	Secret    string `json:"secret"`
	Remaining int    `json:"remaining"` // stok tersisa setelah delivery
}

type OrderExpiredPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"` // timeout | cancelled | rejected
	AdminID string `json:"admin_id,omitempty"`
	Note    string `json:"note,omitempty"`
}

type StockLowPayload struct {
	ProductID string `json:"product_id"`
	PackageID string `json:"package_id"`
	Available int    `json:"available"`
}

type RestockedPayload struct {
	ProductID string `json:"product_id"`
	PackageID string `json:"package_id"`
	Added     int    `json:"added"`
	Available int    `json:"available"`
	AdminID   string `json:"admin_id"`
}
