package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps domain errors to HTTP codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, shop.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shop.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, shop.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shop.ErrDuplicateID),
		errors.Is(err, shop.ErrOutOfStock),
		errors.Is(err, shop.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, shop.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, shop.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, shop.ErrNotFound):
		return "not_found"
	case errors.Is(err, shop.ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, shop.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, shop.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": errorCode(err), "message": msg})
}

// decode reads a JSON body into v and validates its tags.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %v: %w", err, shop.ErrInvalidInput)
	}
	return shop.Validate(v)
}
