package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotency create order: idem:order:create:{user_id}:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Dedup event processing: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)

func IdemOrderCreate(userID, externalID string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, userID, externalID)
}

func Dedup(consumer, eventID string) string {
	return fmt.Sprintf(KeyDedup, consumer, eventID)
}
