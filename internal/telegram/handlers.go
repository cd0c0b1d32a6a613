package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-premium-store/internal/inventory"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/shop"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func userID(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strconv.FormatInt(u.ID, 10)
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	uid := userID(m.From)

	if len(m.Photo) > 0 {
		b.handleProof(ctx, m, uid)
		return
	}
	if !m.IsCommand() {
		b.reply(chatID, "Send /products to start shopping or /howto for help.")
		return
	}

	args := m.CommandArguments()
	switch m.Command() {
	case "start":
		text := "Welcome! Accounts are delivered right here after your payment is verified.\n\n" + howToText
		if b.c.IsAdmin(uid) {
			text += "\n\n" + adminHelpText
		}
		b.reply(chatID, text)
	case "howto", "help":
		b.reply(chatID, howToText)
	case "products":
		b.sendProducts(ctx, chatID)
	case "orders":
		b.sendOrders(ctx, chatID, uid)
	case "cancel":
		b.cancel(ctx, chatID, uid, strings.TrimSpace(args))
	case "addproduct":
		b.adminAddProduct(ctx, chatID, uid, args)
	case "addpackage":
		b.adminAddPackage(ctx, chatID, uid, args)
	case "setprice":
		b.adminSetPrice(ctx, chatID, uid, args)
	case "delpackage":
		b.adminDeletePackage(ctx, chatID, uid, args)
	case "restock":
		b.adminRestock(ctx, chatID, uid, args)
	case "stock":
		b.adminStock(ctx, chatID, uid, strings.TrimSpace(args))
	case "pending":
		b.adminPending(ctx, chatID, uid)
	case "approve":
		b.approve(ctx, chatID, uid, strings.TrimSpace(args))
	case "reject":
		id, note, _ := strings.Cut(strings.TrimSpace(args), " ")
		b.reject(ctx, chatID, uid, id, strings.TrimSpace(note))
	default:
		b.reply(chatID, "Unknown command. /howto lists what I can do.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// hentikan spinner di client
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		b.log.Debug("callback ack failed", zap.Error(err))
	}
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	uid := userID(cq.From)

	cb, err := decodeCallback(cq.Data)
	if err != nil {
		b.log.Warn("bad callback data", zap.String("data", cq.Data), zap.Error(err))
		return
	}
	switch cb.Action {
	case actProduct:
		b.sendPackages(ctx, chatID, cb.Args[0])
	case actSelect:
		b.buy(ctx, chatID, uid, cb.packageKey())
	case actCancel:
		b.cancel(ctx, chatID, uid, cb.Args[0])
	case actApprove:
		b.approve(ctx, chatID, uid, cb.Args[0])
	case actReject:
		b.reject(ctx, chatID, uid, cb.Args[0], "")
	}
}

// ---- buyer ----

func (b *Bot) sendProducts(ctx context.Context, chatID int64) {
	ps, err := b.c.ListProducts(ctx)
	if err != nil {
		b.reply(chatID, userText(err))
		return
	}
	if len(ps) == 0 {
		b.reply(chatID, "No products yet.")
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range ps {
		data, err := encodeCallback(actProduct, p.ID)
		if err != nil {
			b.log.Warn("product id too long for button", zap.String("product_id", p.ID))
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(p.Name, data)))
	}
	msg := tgbotapi.NewMessage(chatID, "Pick a product:")
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	b.send(msg)
}

func (b *Bot) sendPackages(ctx context.Context, chatID int64, productID string) {
	p, err := b.c.GetProduct(ctx, productID)
	if err != nil {
		b.reply(chatID, userText(err))
		return
	}
	list, err := b.c.ListPackages(ctx, productID)
	if err != nil {
		b.reply(chatID, userText(err))
		return
	}
	text := p.Name
	if p.Description != "" {
		text += "\n" + p.Description
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range list {
		if a.Available == 0 {
			text += fmt.Sprintf("\n%s %s: sold out", packageName(a.Package), formatPrice(a.Package.Price))
			continue
		}
		data, err := encodeCallback(actSelect, a.Package.Key.ProductID, a.Package.Key.PackageID)
		if err != nil {
			continue
		}
		text += fmt.Sprintf("\n%s %s: %d left", packageName(a.Package), formatPrice(a.Package.Price), a.Available)
		label := fmt.Sprintf("Buy %s", packageName(a.Package))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	if len(list) == 0 {
		text += "\nNo packages available."
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	b.send(msg)
}

func packageName(p inventory.Package) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Key.PackageID
}

// buy creates the order. Payment instructions arrive through the
// OrderReserved notification.
func (b *Bot) buy(ctx context.Context, chatID int64, uid string, key shop.PackageKey) {
	o, err := b.c.CreateOrder(ctx, uid, key)
	if err != nil {
		if o.ID != "" {
			// order SELECTING tidak dipakai lagi
			_, _ = b.c.Cancel(ctx, o.ID, uid)
		}
		b.reply(chatID, userText(err))
		return
	}
	b.log.Info("telegram order", zap.String("order_id", o.ID), zap.String("user_id", uid))
}

// handleProof takes the largest photo size as proof for the order named in
// the caption, or else the newest order waiting for proof.
func (b *Bot) handleProof(ctx context.Context, m *tgbotapi.Message, uid string) {
	chatID := m.Chat.ID
	fileID := m.Photo[len(m.Photo)-1].FileID

	orderID := strings.TrimSpace(m.Caption)
	if orderID == "" {
		list, err := b.c.ListUserOrders(ctx, uid, 20)
		if err != nil {
			b.reply(chatID, userText(err))
			return
		}
		for _, o := range list {
			if o.State == orders.StateAwaitingProof {
				orderID = o.ID
				break
			}
		}
		if orderID == "" {
			b.reply(chatID, "You have no order waiting for payment. Use /products to buy.")
			return
		}
	}
	if _, err := b.c.SubmitProof(ctx, orderID, uid, fileID); err != nil {
		b.reply(chatID, userText(err))
	}
}

func (b *Bot) sendOrders(ctx context.Context, chatID int64, uid string) {
	list, err := b.c.ListUserOrders(ctx, uid, 10)
	if err != nil {
		b.reply(chatID, userText(err))
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "No orders yet.")
		return
	}
	lines := make([]string, 0, len(list)+1)
	lines = append(lines, "Your recent orders:")
	for _, o := range list {
		lines = append(lines, orderLine(o))
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) cancel(ctx context.Context, chatID int64, uid, orderID string) {
	if orderID == "" {
		b.reply(chatID, "Usage: /cancel orderID")
		return
	}
	if _, err := b.c.Cancel(ctx, orderID, uid); err != nil {
		b.reply(chatID, userText(err))
	}
}

// ---- admin ----

func (b *Bot) adminAddProduct(ctx context.Context, chatID int64, uid, args string) {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	p := inventory.Product{ID: parts[0], Name: parts[1], Category: parts[2], Description: parts[3]}
	if err := b.c.AddProduct(ctx, uid, p); err != nil {
		b.reply(chatID, userText(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Product %s added.", p.ID))
}

func (b *Bot) adminAddPackage(ctx context.Context, chatID int64, uid, args string) {
	f := strings.Fields(args)
	if len(f) < 3 {
		b.reply(chatID, "Usage: /addpackage productID packageID price [name]")
		return
	}
	price, err := strconv.ParseInt(f[2], 10, 64)
	if err != nil {
		b.reply(chatID, "Price must be a whole number.")
		return
	}
	p := inventory.Package{
		Key:   shop.PackageKey{ProductID: f[0], PackageID: f[1]},
		Name:  strings.Join(f[3:], " "),
		Price: price,
	}
	if err := b.c.AddPackage(ctx, uid, p); err != nil {
		b.reply(chatID, userText(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Package %s added at %s.", p.Key, formatPrice(price)))
}

func (b *Bot) adminSetPrice(ctx context.Context, chatID int64, uid, args string) {
	f := strings.Fields(args)
	if len(f) != 3 {
		b.reply(chatID, "Usage: /setprice productID packageID price")
		return
	}
	price, err := strconv.ParseInt(f[2], 10, 64)
	if err != nil {
		b.reply(chatID, "Price must be a whole number.")
		return
	}
	key := shop.PackageKey{ProductID: f[0], PackageID: f[1]}
	if err := b.c.SetPrice(ctx, uid, key, price); err != nil {
		b.reply(chatID, userText(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Price of %s is now %s.", key, formatPrice(price)))
}

func (b *Bot) adminDeletePackage(ctx context.Context, chatID int64, uid, args string) {
	f := strings.Fields(args)
	if len(f) != 2 {
		b.reply(chatID, "Usage: /delpackage productID packageID")
		return
	}
	key := shop.PackageKey{ProductID: f[0], PackageID: f[1]}
	if err := b.c.DeletePackage(ctx, uid, key); err != nil {
		b.reply(chatID, userText(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Package %s removed.", key))
}

// adminRestock reads "productID packageID" on the first line and one
// credential per following line.
func (b *Bot) adminRestock(ctx context.Context, chatID int64, uid, args string) {
	head, body, _ := strings.Cut(args, "\n")
	f := strings.Fields(head)
	if len(f) != 2 || strings.TrimSpace(body) == "" {
		b.reply(chatID, "Usage: /restock productID packageID\nfollowed by one credential per line")
		return
	}
	key := shop.PackageKey{ProductID: f[0], PackageID: f[1]}
	n, err := b.c.Restock(ctx, uid, key, strings.Split(body, "\n"))
	if err != nil {
		b.reply(chatID, userText(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Added %d credentials to %s.", n, key))
}

func (b *Bot) adminStock(ctx context.Context, chatID int64, uid, productID string) {
	if productID == "" {
		b.reply(chatID, "Usage: /stock productID")
		return
	}
	rep, err := b.c.StockReport(ctx, uid, productID)
	if err != nil {
		b.reply(chatID, userText(err))
		return
	}
	b.reply(chatID, stockText(rep))
}

func (b *Bot) adminPending(ctx context.Context, chatID int64, uid string) {
	list, err := b.c.PendingOrders(ctx, uid)
	if err != nil {
		b.reply(chatID, userText(err))
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "Nothing waiting for verification.")
		return
	}
	for _, o := range list {
		msg := tgbotapi.NewMessage(chatID, orderLine(o))
		if kb, ok := decisionKeyboard(o.ID); ok {
			msg.ReplyMarkup = kb
		}
		b.send(msg)
	}
}

func (b *Bot) approve(ctx context.Context, chatID int64, uid, orderID string) {
	if orderID == "" {
		b.reply(chatID, "Usage: /approve orderID")
		return
	}
	d, err := b.c.AdminApprove(ctx, orderID, uid)
	if err != nil {
		b.reply(chatID, userText(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Order %s approved and delivered.", d.Order.ID))
}

func (b *Bot) reject(ctx context.Context, chatID int64, uid, orderID, note string) {
	if orderID == "" {
		b.reply(chatID, "Usage: /reject orderID [note]")
		return
	}
	if _, err := b.c.AdminReject(ctx, orderID, uid, note); err != nil {
		b.reply(chatID, userText(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Order %s rejected.", orderID))
}

func decisionKeyboard(orderID string) (tgbotapi.InlineKeyboardMarkup, bool) {
	ok, err1 := encodeCallback(actApprove, orderID)
	no, err2 := encodeCallback(actReject, orderID)
	if err1 != nil || err2 != nil {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Approve", ok),
		tgbotapi.NewInlineKeyboardButtonData("Reject", no),
	)), true
}
