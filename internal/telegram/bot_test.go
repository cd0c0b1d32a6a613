package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/inventory"
	"github.com/ariefcatur/go-premium-store/internal/notify"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	adminChat int64 = 1
	buyerChat int64 = 42
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, c)
	f.mu.Unlock()
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns message texts and photo captions sent to chatID.
func (f *fakeAPI) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.PhotoConfig:
			if m.ChatID == chatID {
				out = append(out, m.Caption)
			}
		}
	}
	return out
}

func (f *fakeAPI) lastTo(chatID int64) string {
	t := f.texts(chatID)
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func command(from int64, text string) tgbotapi.Update {
	n := strings.IndexAny(text, " \n")
	if n < 0 {
		n = len(text)
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: from},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}}
}

func press(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: from}},
		Data:    data,
	}}
}

func newBot(t *testing.T) (*Bot, *fakeAPI, *orders.Coordinator) {
	t.Helper()
	api := &fakeAPI{}
	notifier := NewNotifier(api, []string{"1"}, "Transfer ke BCA 123", nil)
	svc := &notify.Service{Sender: notifier}
	c := orders.NewCoordinator(inventory.NewMemoryStore(), orders.NewMemoryRepo(), orders.Options{
		AdminIDs:          []string{"1"},
		LowStockThreshold: -1,
		Publisher:         orders.PublisherFunc(svc.Handle),
	})
	return New(api, c, "Transfer ke BCA 123", nil), api, c
}

func TestTelegramPurchaseFlow(t *testing.T) {
	ctx := context.Background()
	b, api, c := newBot(t)

	b.HandleUpdate(ctx, command(adminChat, "/addproduct netflix | Netflix Premium | streaming | UHD"))
	b.HandleUpdate(ctx, command(adminChat, "/addpackage netflix 1m 25000 1 bulan"))
	b.HandleUpdate(ctx, command(adminChat, "/restock netflix 1m\nuser@mail.com:pass1\n\nuser2@mail.com:pass2"))
	if got := api.lastTo(adminChat); !strings.Contains(got, "Added 2 credentials") {
		t.Fatalf("unexpected restock reply %q", got)
	}

	b.HandleUpdate(ctx, command(buyerChat, "/products"))
	data, _ := encodeCallback(actProduct, "netflix")
	b.HandleUpdate(ctx, press(buyerChat, data))
	if got := api.lastTo(buyerChat); !strings.Contains(got, "Rp25.000") || !strings.Contains(got, "Netflix Premium") {
		t.Fatalf("package list missing price: %q", got)
	}

	data, _ = encodeCallback(actSelect, "netflix", "1m")
	b.HandleUpdate(ctx, press(buyerChat, data))
	if got := api.lastTo(buyerChat); !strings.Contains(got, "Transfer ke BCA 123") || !strings.Contains(got, "Rp25.000") {
		t.Fatalf("payment instructions not sent: %q", got)
	}

	b.HandleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		From:  &tgbotapi.User{ID: buyerChat},
		Chat:  &tgbotapi.Chat{ID: buyerChat},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}})
	list, _ := c.ListUserOrders(ctx, "42", 1)
	if len(list) != 1 || list[0].State != orders.StatePendingVerification || list[0].ProofRef != "large" {
		t.Fatalf("proof not recorded: %+v", list)
	}
	if got := api.lastTo(adminChat); !strings.Contains(got, "Payment proof") {
		t.Fatalf("admin not notified: %q", got)
	}

	data, _ = encodeCallback(actApprove, list[0].ID)
	b.HandleUpdate(ctx, press(buyerChat, data))
	if got := api.lastTo(buyerChat); !strings.Contains(got, "not allowed") {
		t.Fatalf("buyer approve should be refused, got %q", got)
	}
	b.HandleUpdate(ctx, press(adminChat, data))

	found := false
	for _, txt := range api.texts(buyerChat) {
		if strings.Contains(txt, "user@mail.com:pass1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("credential not delivered to buyer: %v", api.texts(buyerChat))
	}
	if got := api.lastTo(adminChat); !strings.Contains(got, "approved") {
		t.Fatalf("admin confirmation missing: %q", got)
	}

	b.HandleUpdate(ctx, command(adminChat, "/stock netflix"))
	if got := api.lastTo(adminChat); !strings.Contains(got, "available 1, reserved 0, sold 1") {
		t.Fatalf("unexpected stock text %q", got)
	}
}

func TestSoldOutAndCancel(t *testing.T) {
	ctx := context.Background()
	b, api, c := newBot(t)
	b.HandleUpdate(ctx, command(adminChat, "/addproduct canva | Canva Pro"))
	b.HandleUpdate(ctx, command(adminChat, "/addpackage canva 1m 10000"))

	data, _ := encodeCallback(actSelect, "canva", "1m")
	b.HandleUpdate(ctx, press(buyerChat, data))
	if got := api.lastTo(buyerChat); !strings.Contains(got, "sold out") {
		t.Fatalf("expected sold out reply, got %q", got)
	}
	list, _ := c.ListUserOrders(ctx, "42", 5)
	if len(list) != 1 || list[0].State != orders.StateExpired {
		t.Fatalf("abandoned selecting order should be closed: %+v", list)
	}

	b.HandleUpdate(ctx, command(adminChat, "/restock canva 1m\nacc"))
	b.HandleUpdate(ctx, press(buyerChat, data))
	list, _ = c.ListUserOrders(ctx, "42", 5)
	var open string
	for _, o := range list {
		if o.State == orders.StateAwaitingProof {
			open = o.ID
		}
	}
	if open == "" {
		t.Fatalf("no order after restock: %+v", list)
	}
	cancel, _ := encodeCallback(actCancel, open)
	b.HandleUpdate(ctx, press(buyerChat, cancel))
	if got := api.lastTo(buyerChat); !strings.Contains(got, "cancelled") {
		t.Fatalf("expected cancel notice, got %q", got)
	}
}

func TestNonAdminCommandsRefused(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newBot(t)
	b.HandleUpdate(ctx, command(buyerChat, "/addproduct x | X"))
	if got := api.lastTo(buyerChat); !strings.Contains(got, "not allowed") {
		t.Fatalf("expected refusal, got %q", got)
	}
	b.HandleUpdate(ctx, command(buyerChat, "/pending"))
	if got := api.lastTo(buyerChat); !strings.Contains(got, "not allowed") {
		t.Fatalf("expected refusal, got %q", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	b, _, _ := newBot(t)
	updates := make(chan tgbotapi.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, updates) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
