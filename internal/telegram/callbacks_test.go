package telegram

import (
	"errors"
	"strings"
	"testing"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

func TestCallbackRoundTripWithDelimiter(t *testing.T) {
	data, err := encodeCallback(actSelect, "net|flix", "1 m")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cb, err := decodeCallback(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := cb.packageKey(); got != (shop.PackageKey{ProductID: "net|flix", PackageID: "1 m"}) {
		t.Fatalf("unexpected key %+v", got)
	}
}

func TestCallbackLimits(t *testing.T) {
	if _, err := encodeCallback(actProduct, strings.Repeat("x", 64)); !errors.Is(err, shop.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for long data, got %v", err)
	}
	// uuid order ids fit
	if _, err := encodeCallback(actApprove, "3f2504e0-4f89-11d3-9a0c-0305e82c3301"); err != nil {
		t.Fatalf("uuid should fit: %v", err)
	}
	for _, bad := range []string{"", "sel|only-one", "zzz|a", "ok|%zz"} {
		if _, err := decodeCallback(bad); !errors.Is(err, shop.ErrInvalidInput) {
			t.Errorf("decode %q: expected ErrInvalidInput, got %v", bad, err)
		}
	}
}
