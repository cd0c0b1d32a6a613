package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-premium-store/internal/config"
	"github.com/ariefcatur/go-premium-store/internal/inventory"
	kafkax "github.com/ariefcatur/go-premium-store/internal/kafka"
	"github.com/ariefcatur/go-premium-store/internal/notify"
	"github.com/ariefcatur/go-premium-store/internal/orders"
	"github.com/ariefcatur/go-premium-store/internal/postgres"
	"github.com/ariefcatur/go-premium-store/internal/redisx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired stores, claimer and publisher of one process.
type App struct {
	Cfg     config.Config
	Log     *zap.Logger
	Inv     inventory.Store
	Repo    orders.Repo
	Claimer redisx.Claimer
	Coord   *orders.Coordinator

	// Producer is set when KAFKA_BROKERS is configured.
	Producer *kafkax.Producer
	// Local is set when events are delivered in process; run it.
	Local *notify.Local

	db  *pgxpool.Pool
	rdb *redis.Client
}

// Build connects what the config names and falls back to in-memory
// implementations for what it leaves empty. sender may be nil; it is used
// for in-process notifications when Kafka is not configured. The Kafka
// producer outlives ctx and is stopped by Close, so requests still draining
// after a shutdown signal can publish their events.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, sender notify.Sender) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		a.db = db
		a.Inv = &inventory.PGStore{DB: db}
		a.Repo = &orders.PGRepo{DB: db}
		log.Info("storage: postgres")
	} else {
		a.Inv = inventory.NewMemoryStore()
		a.Repo = orders.NewMemoryRepo()
		log.Warn("storage: in-memory, data is lost on restart")
	}

	if cfg.RedisAddr != "" {
		a.rdb = redisx.New(cfg.RedisAddr)
		if err := redisx.Ping(ctx, a.rdb); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.Claimer = redisx.RedisClaimer{RDB: a.rdb}
	} else {
		a.Claimer = redisx.NewMemoryClaimer()
	}

	var pub orders.Publisher
	switch {
	case len(cfg.KafkaBrokers) > 0:
		a.Producer = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		a.Producer.Start(context.WithoutCancel(ctx))
		pub = kafkax.EventPublisher{P: a.Producer}
		log.Info("events: kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	case sender != nil:
		a.Local = notify.NewLocal(&notify.Service{
			Sender:   sender,
			Dedup:    a.Claimer,
			Consumer: cfg.NotifierGroup,
			Log:      log,
		}, 1024)
		pub = a.Local
		log.Info("events: in-process notifier")
	default:
		pub = orders.LogPublisher{Log: log}
		log.Info("events: log only")
	}

	a.Coord = orders.NewCoordinator(a.Inv, a.Repo, orders.Options{
		PaymentWindow:     cfg.PaymentWindow,
		AdminIDs:          cfg.AdminIDs,
		LowStockThreshold: cfg.LowStockThreshold,
		ServiceName:       cfg.ServiceName,
		Publisher:         pub,
		Logger:            log,
	})
	return a, nil
}

// Close flushes the producer and closes connections. Call it after every
// component that publishes has stopped.
func (a *App) Close() {
	if a.Producer != nil {
		a.Producer.Close()
		a.Producer.WaitClosed()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
