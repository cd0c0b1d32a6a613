package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/inventory"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/shop"
)

// formatPrice renders 25000 as "Rp25.000".
func formatPrice(p int64) string {
	s := strconv.FormatInt(p, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-Rp" + b.String()
	}
	return "Rp" + b.String()
}

func formatTime(t time.Time) string {
	return t.Format("02 Jan 2006 15:04 MST")
}

func userText(err error) string {
	switch {
	case errors.Is(err, shop.ErrOutOfStock):
		return "Sorry, this package is sold out. Please pick another one."
	case errors.Is(err, shop.ErrNotFound):
		return "Not found."
	case errors.Is(err, shop.ErrUnauthorized):
		return "You are not allowed to do that."
	case errors.Is(err, shop.ErrInvalidTransition):
		return "That action is no longer possible for this order."
	case errors.Is(err, shop.ErrDuplicateID):
		return "That ID already exists."
	case errors.Is(err, shop.ErrInvalidInput):
		return "Invalid input: " + err.Error()
	default:
		return "Something went wrong, please try again."
	}
}

func orderLine(o orders.Order) string {
	line := fmt.Sprintf("%s  %s", o.ID, o.State)
	if !o.Package.Empty() {
		line += fmt.Sprintf("  %s %s", o.Package, formatPrice(o.Price))
	}
	if o.Reason != "" {
		line += " (" + o.Reason + ")"
	}
	return line
}

func stockText(rep inventory.StockReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stock for %s\n", rep.Product.Name)
	if len(rep.Packages) == 0 {
		b.WriteString("no packages")
	}
	for _, ps := range rep.Packages {
		fmt.Fprintf(&b, "\n%s %s (%s)\navailable %d, reserved %d, sold %d, revenue %s\n",
			ps.Package.Key.PackageID, ps.Package.Name, formatPrice(ps.Package.Price),
			ps.Available, ps.Reserved, ps.Delivered, formatPrice(ps.Revenue))
	}
	return b.String()
}

const howToText = `How to buy:
1. /products and pick a product, then a package.
2. Transfer the exact amount shown before the deadline.
3. Send the transfer receipt here as a photo.
4. An admin checks it and the bot sends your account.

/orders shows your recent orders.`

const adminHelpText = `Admin commands:
/addproduct id | name | category | description
/addpackage productID packageID price [name]
/setprice productID packageID price
/delpackage productID packageID
/restock productID packageID
  then one credential per line
/stock productID
/pending
/approve orderID
/reject orderID [note]`
