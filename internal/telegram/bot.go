package telegram

import (
	"context"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/orders"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot turns Telegram updates into coordinator commands. It holds no order
// state of its own.
type Bot struct {
	api  API
	c    *orders.Coordinator
	bank string
	log  *zap.Logger
}

func New(api API, c *orders.Coordinator, bankInstructions string, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{api: api, c: c, bank: bankInstructions, log: log}
}

// Poll long-polls Telegram until ctx is done.
func Poll(ctx context.Context, api *tgbotapi.BotAPI, b *Bot) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()
	b.log.Info("telegram polling started", zap.String("bot", api.Self.UserName))
	return b.Run(ctx, updates)
}

// Run handles updates concurrently, a few at a time.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	g := new(errgroup.Group)
	g.SetLimit(8)
	defer g.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			g.Go(func() error {
				uctx, cancel := context.WithTimeout(ctx, 15*time.Second)
				defer cancel()
				b.HandleUpdate(uctx, upd)
				return nil
			})
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in update handler", zap.Any("panic", r), zap.Int("update_id", upd.UpdateID))
		}
	}()
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}
