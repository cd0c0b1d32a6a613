package telegram

import "testing"

func TestFormatPrice(t *testing.T) {
	for in, want := range map[int64]string{
		0:       "Rp0",
		999:     "Rp999",
		1000:    "Rp1.000",
		25000:   "Rp25.000",
		1234567: "Rp1.234.567",
		-5000:   "-Rp5.000",
	} {
		if got := formatPrice(in); got != want {
			t.Errorf("formatPrice(%d) = %q, want %q", in, got, want)
		}
	}
}
