package telegram

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ariefcatur/go-premium-store/internal/shop"
)

// Telegram rejects callback data longer than this many bytes.
const maxCallbackData = 64

const (
	actProduct = "prod"   // prod|productID
	actSelect  = "sel"    // sel|productID|packageID
	actCancel  = "cancel" // cancel|orderID
	actApprove = "ok"     // ok|orderID
	actReject  = "no"     // no|orderID
)

type callback struct {
	Action string
	Args   []string
}

// encodeCallback joins action and escaped args with "|". IDs may contain
// the delimiter, so every arg is query-escaped.
func encodeCallback(action string, args ...string) (string, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, action)
	for _, a := range args {
		parts = append(parts, url.QueryEscape(a))
	}
	s := strings.Join(parts, "|")
	if len(s) > maxCallbackData {
		return "", fmt.Errorf("callback data %d bytes: %w", len(s), shop.ErrInvalidInput)
	}
	return s, nil
}

func decodeCallback(data string) (callback, error) {
	parts := strings.Split(data, "|")
	cb := callback{Action: parts[0]}
	for _, p := range parts[1:] {
		a, err := url.QueryUnescape(p)
		if err != nil {
			return callback{}, fmt.Errorf("callback arg %q: %w", p, shop.ErrInvalidInput)
		}
		cb.Args = append(cb.Args, a)
	}
	want := map[string]int{actProduct: 1, actSelect: 2, actCancel: 1, actApprove: 1, actReject: 1}
	n, ok := want[cb.Action]
	if !ok || len(cb.Args) != n {
		return callback{}, fmt.Errorf("callback %q: %w", data, shop.ErrInvalidInput)
	}
	return cb, nil
}

func (cb callback) packageKey() shop.PackageKey {
	return shop.PackageKey{ProductID: cb.Args[0], PackageID: cb.Args[1]}
}
