package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/config"
	kafkax "github.com/ariefcatur/go-premium-store/internal/kafka"
	"github.com/ariefcatur/go-premium-store/internal/logger"
	"github.com/ariefcatur/go-premium-store/internal/notify"
	"github.com/ariefcatur/go-premium-store/internal/observability"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/redisx"
	"github.com/ariefcatur/go-premium-store/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if len(cfg.KafkaBrokers) == 0 || cfg.TelegramToken == "" {
		log.Fatal("KAFKA_BROKERS and TELEGRAM_TOKEN are required")
	}
	lg := logger.New(cfg.ServiceName+"-notifier", cfg.LogLevel, cfg.LogFile)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName+"-notifier")
	if err != nil {
		lg.Fatal("tracing", zap.Error(err))
	}

	var dedup redisx.Claimer = redisx.NewMemoryClaimer()
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		dedup = redisx.RedisClaimer{RDB: rdb}
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		lg.Fatal("telegram", zap.Error(err))
	}
	svc := &notify.Service{
		Sender:   telegram.NewNotifier(api, cfg.AdminIDs, cfg.BankInstructions, lg),
		Dedup:    dedup,
		Consumer: cfg.NotifierGroup,
		Log:      lg,
	}

	topics := []string{orders.TopicOrderEvents, orders.TopicStockEvents}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topics, cfg.NotifierWorkers, lg)
	lg.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup), zap.Strings("topics", topics), zap.Int("workers", cfg.NotifierWorkers))
	if err := cons.Start(ctx, svc.HandleMessage); err != nil {
		lg.Error("consumer exit", zap.Error(err))
	}

	lg.Info("shutting down consumer...")
	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = shutdownTracing(ctx2)
}
