package kafka

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-premium-store/internal/orders"
)

// Versi envelope tertinggi yang dimengerti consumer.
const maxEventVersion = 1

var errMalformedEnvelope = errors.New("malformed envelope")

// EncodeEnvelope serializes ev as the kafka message value.
func EncodeEnvelope(ev orders.Envelope) ([]byte, error) {
	if ev.EventID == "" || ev.EventType == "" {
		return nil, fmt.Errorf("%w: event_id and event_type are required", errMalformedEnvelope)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType, err)
	}
	return b, nil
}

// DecodeEnvelope parses a message value, rejecting envelopes a consumer of
// this build cannot handle.
func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var ev orders.Envelope
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", errMalformedEnvelope, err)
	}
	switch {
	case ev.EventID == "" || ev.EventType == "":
		return ev, fmt.Errorf("%w: missing event_id or event_type", errMalformedEnvelope)
	case ev.EventVersion > maxEventVersion:
		return ev, fmt.Errorf("%w: %s version %d", errMalformedEnvelope, ev.EventType, ev.EventVersion)
	}
	return ev, nil
}

// Unwrap memudahkan decode payload spesifik
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
