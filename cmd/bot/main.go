package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/app"
	"github.com/ariefcatur/go-premium-store/internal/config"
	"github.com/ariefcatur/go-premium-store/internal/logger"
	"github.com/ariefcatur/go-premium-store/internal/observability"
	"github.com/ariefcatur/go-premium-store/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}
	lg := logger.New(cfg.ServiceName+"-bot", cfg.LogLevel, cfg.LogFile)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName+"-bot")
	if err != nil {
		lg.Fatal("tracing", zap.Error(err))
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		lg.Fatal("telegram", zap.Error(err))
	}
	notifier := telegram.NewNotifier(api, cfg.AdminIDs, cfg.BankInstructions, lg)

	a, err := app.Build(ctx, cfg, lg, notifier)
	if err != nil {
		lg.Fatal("build", zap.Error(err))
	}
	bot := telegram.New(api, a.Coord, cfg.BankInstructions, lg)

	// publisher ditutup setelah poller dan sweeper selesai
	pubCtx, stopPub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPub()
	localDone := make(chan error, 1)
	if a.Local != nil {
		go func() { localDone <- a.Local.Run(pubCtx) }()
	} else {
		localDone <- nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return telegram.Poll(gctx, api, bot) })
	g.Go(func() error { return a.Coord.RunSweeper(gctx, cfg.SweepInterval) })

	if err := g.Wait(); err != nil {
		lg.Error("bot exit", zap.Error(err))
	}
	lg.Info("shutting down...")
	stop()
	stopPub()
	<-localDone
	a.Close()
	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = shutdownTracing(ctx2)
}
