package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ariefcatur/go-premium-store/internal/orders"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier sends lifecycle messages over Telegram. Buyers are addressed by
// their user id, which equals the private chat id.
type Notifier struct {
	api    API
	admins []int64
	bank   string
	log    *zap.Logger
}

func NewNotifier(api API, adminIDs []string, bankInstructions string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Notifier{api: api, bank: bankInstructions, log: log}
	for _, id := range adminIDs {
		v, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			log.Warn("admin id is not a telegram id, skipped", zap.String("admin_id", id))
			continue
		}
		n.admins = append(n.admins, v)
	}
	return n
}

// chat returns false for users that did not come from Telegram.
func (n *Notifier) chat(userID string) (int64, bool) {
	v, err := strconv.ParseInt(userID, 10, 64)
	return v, err == nil
}

func (n *Notifier) toUser(userID string, c func(chatID int64) tgbotapi.Chattable) error {
	chatID, ok := n.chat(userID)
	if !ok {
		n.log.Debug("no telegram chat for user", zap.String("user_id", userID))
		return nil
	}
	_, err := n.api.Send(c(chatID))
	return err
}

// toAdmins keeps going after a failed send and reports the last error.
func (n *Notifier) toAdmins(c func(chatID int64) tgbotapi.Chattable) error {
	var last error
	for _, id := range n.admins {
		if _, err := n.api.Send(c(id)); err != nil {
			n.log.Warn("admin notify failed", zap.Int64("admin", id), zap.Error(err))
			last = err
		}
	}
	return last
}

func (n *Notifier) PaymentRequested(_ context.Context, p orders.OrderReservedPayload) error {
	text := fmt.Sprintf("Order %s\n%s / %s\nAmount: %s\n\n%s\n\nPay before %s and send the receipt photo here.",
		p.OrderID, p.ProductID, p.PackageID, formatPrice(p.Price), n.bank, formatTime(p.ExpiresAt))
	return n.toUser(p.UserID, func(chatID int64) tgbotapi.Chattable {
		msg := tgbotapi.NewMessage(chatID, text)
		if data, err := encodeCallback(actCancel, p.OrderID); err == nil {
			msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Cancel order", data)))
		}
		return msg
	})
}

func (n *Notifier) ProofReceived(_ context.Context, p orders.ProofSubmittedPayload) error {
	if err := n.toUser(p.UserID, func(chatID int64) tgbotapi.Chattable {
		return tgbotapi.NewMessage(chatID, fmt.Sprintf("Receipt for order %s received. Waiting for admin verification.", p.OrderID))
	}); err != nil {
		return err
	}

	caption := fmt.Sprintf("Payment proof\nOrder %s\nUser %s\n%s / %s\nAmount: %s\nExpires %s",
		p.OrderID, p.UserID, p.ProductID, p.PackageID, formatPrice(p.Price), formatTime(p.ExpiresAt))
	kb, hasKB := decisionKeyboard(p.OrderID)
	return n.toAdmins(func(chatID int64) tgbotapi.Chattable {
		if p.ProofRef == "" {
			msg := tgbotapi.NewMessage(chatID, caption)
			if hasKB {
				msg.ReplyMarkup = kb
			}
			return msg
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(p.ProofRef))
		photo.Caption = caption
		if hasKB {
			photo.ReplyMarkup = kb
		}
		return photo
	})
}

func (n *Notifier) Delivered(_ context.Context, p orders.OrderFulfilledPayload) error {
	if err := n.toUser(p.UserID, func(chatID int64) tgbotapi.Chattable {
		return tgbotapi.NewMessage(chatID, fmt.Sprintf("Payment verified for order %s. Your account:\n\n%s\n\nThank you!", p.OrderID, p.Secret))
	}); err != nil {
		return err
	}
	return n.toAdmins(func(chatID int64) tgbotapi.Chattable {
		return tgbotapi.NewMessage(chatID, fmt.Sprintf("Order %s delivered (%s / %s). %d left in stock.",
			p.OrderID, p.ProductID, p.PackageID, p.Remaining))
	})
}

func (n *Notifier) Expired(_ context.Context, p orders.OrderExpiredPayload) error {
	var text string
	switch p.Reason {
	case orders.ReasonRejected:
		text = fmt.Sprintf("Your payment for order %s could not be verified.", p.OrderID)
		if p.Note != "" {
			text += "\nNote: " + p.Note
		}
	case orders.ReasonCancelled:
		text = fmt.Sprintf("Order %s cancelled.", p.OrderID)
	default:
		text = fmt.Sprintf("Order %s expired because the payment window ended.", p.OrderID)
	}
	return n.toUser(p.UserID, func(chatID int64) tgbotapi.Chattable {
		return tgbotapi.NewMessage(chatID, text)
	})
}

func (n *Notifier) StockLow(_ context.Context, p orders.StockLowPayload) error {
	return n.toAdmins(func(chatID int64) tgbotapi.Chattable {
		return tgbotapi.NewMessage(chatID, fmt.Sprintf("Low stock: %s / %s has %d available. Use /restock %s %s",
			p.ProductID, p.PackageID, p.Available, p.ProductID, p.PackageID))
	})
}
