package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/app"
	"github.com/ariefcatur/go-premium-store/internal/config"
	"github.com/ariefcatur/go-premium-store/internal/httpx"
	"github.com/ariefcatur/go-premium-store/internal/logger"
	"github.com/ariefcatur/go-premium-store/internal/notify"
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
	lg := logger.New(cfg.ServiceName+"-api", cfg.LogLevel, cfg.LogFile)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName+"-api")
	if err != nil {
		lg.Fatal("tracing", zap.Error(err))
	}

	// tanpa kafka, notifikasi telegram dikirim langsung dari proses ini
	var sender notify.Sender
	if cfg.TelegramToken != "" && len(cfg.KafkaBrokers) == 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			lg.Fatal("telegram", zap.Error(err))
		}
		sender = telegram.NewNotifier(bot, cfg.AdminIDs, cfg.BankInstructions, lg)
	}

	a, err := app.Build(ctx, cfg, lg, sender)
	if err != nil {
		lg.Fatal("build", zap.Error(err))
	}

	router := httpx.NewRouter(lg)
	(&httpx.OrdersHandler{C: a.Coord, Idem: a.Claimer, Log: lg}).Register(router)
	(&httpx.AdminHandler{C: a.Coord}).Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// publisher hidup lebih lama dari server: request yang masih jalan saat
	// shutdown tetap bisa mengirim event
	pubCtx, stopPub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPub()
	localDone := make(chan error, 1)
	if a.Local != nil {
		go func() { localDone <- a.Local.Run(pubCtx) }()
	} else {
		localDone <- nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error { return a.Coord.RunSweeper(gctx, cfg.SweepInterval) })

	if err := g.Wait(); err != nil {
		lg.Error("api exit", zap.Error(err))
	}
	lg.Info("shutting down...")
	stop()
	stopPub()
	<-localDone
	a.Close()
	ctx3, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = shutdownTracing(ctx3)
}
