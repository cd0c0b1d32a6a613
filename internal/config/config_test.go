package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "POSTGRES_DSN", "REDIS_ADDR", "KAFKA_BROKERS", "PAYMENT_WINDOW", "SWEEP_INTERVAL", "ADMIN_IDS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.PaymentWindow != 30*time.Minute {
		t.Fatalf("unexpected window %v", cfg.PaymentWindow)
	}
	if len(cfg.KafkaBrokers) != 0 || len(cfg.AdminIDs) != 0 {
		t.Fatalf("expected empty lists: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYMENT_WINDOW", "90")
	t.Setenv("SWEEP_INTERVAL", "5s")
	t.Setenv("ADMIN_IDS", " 100, 200 ,,")
	t.Setenv("KAFKA_BROKERS", "kafka:9092,kafka2:9092")
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PaymentWindow != 90*time.Second {
		t.Fatalf("window: %v", cfg.PaymentWindow)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Fatalf("sweep: %v", cfg.SweepInterval)
	}
	if len(cfg.AdminIDs) != 2 || cfg.AdminIDs[0] != "100" || cfg.AdminIDs[1] != "200" {
		t.Fatalf("admins: %v", cfg.AdminIDs)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("level: %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PAYMENT_WINDOW", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected duration error")
	}
	t.Setenv("PAYMENT_WINDOW", "")
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}
