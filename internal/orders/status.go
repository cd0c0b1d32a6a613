package orders

import (
	"fmt"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

type State string

const (
	StateSelecting           State = "SELECTING"
	StateAwaitingProof       State = "AWAITING_PROOF"
	StatePendingVerification State = "PENDING_VERIFICATION"
	StateFulfilled           State = "FULFILLED"
	StateExpired             State = "EXPIRED"
)

var validNext = map[State]map[State]bool{
	StateSelecting:           {StateAwaitingProof: true, StateExpired: true},
	StateAwaitingProof:       {StatePendingVerification: true, StateExpired: true},
	StatePendingVerification: {StateFulfilled: true, StateExpired: true},
	StateFulfilled:           {},
	StateExpired:             {},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

func (s State) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s State) Terminal() bool { return s == StateFulfilled || s == StateExpired }

// Holding reports whether an order in this state owns a reserved credential.
func (s State) Holding() bool { return s == StateAwaitingProof || s == StatePendingVerification }

func ParseState(v string) (State, error) {
	s := State(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order state %q: %w", v, shop.ErrInvalidInput)
	}
	return s, nil
}

// Alasan order berakhir EXPIRED.
const (
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
	ReasonRejected  = "rejected"
)
