package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	HTTPAddr     string   `validate:"required"`
	PostgresDSN  string   `validate:"omitempty,url"`
	RedisAddr    string   `validate:"omitempty,hostname_port"`
	KafkaBrokers []string `validate:"dive,hostname_port"`
	ServiceName  string   `validate:"required"`

	PaymentWindow     time.Duration `validate:"gt=0"`
	SweepInterval     time.Duration `validate:"gt=0"`
	AdminIDs          []string
	LowStockThreshold int `validate:"min=0"`

	TelegramToken    string
	BankInstructions string

	NotifierGroup   string `validate:"required"`
	NotifierWorkers int    `validate:"min=1,max=64"`

	LogLevel     string `validate:"oneof=debug info warn error"`
	LogFile      string
	OtelEndpoint string
}

func Load() (Config, error) {
	window, err := durenv("PAYMENT_WINDOW", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	sweep, err := durenv("SWEEP_INTERVAL", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:       getenv("POSTGRES_DSN", ""),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		KafkaBrokers:      splitCSV(getenv("KAFKA_BROKERS", "")),
		ServiceName:       getenv("SERVICE_NAME", "premium-store"),
		PaymentWindow:     window,
		SweepInterval:     sweep,
		AdminIDs:          splitCSV(getenv("ADMIN_IDS", "")),
		LowStockThreshold: atoienv("LOW_STOCK_THRESHOLD", 1),
		TelegramToken:     getenv("TELEGRAM_TOKEN", ""),
		BankInstructions:  getenv("BANK_INSTRUCTIONS", "Transfer ke BCA 1234567890 a.n STORE"),
		NotifierGroup:     getenv("NOTIFIER_GROUP", "storebot-notifier"),
		NotifierWorkers:   atoienv("NOTIFIER_WORKERS", 4),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFile:           getenv("LOG_FILE", ""),
		OtelEndpoint:      getenv("OTEL_ENDPOINT", ""),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoienv(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// durenv menerima format time.ParseDuration ("30m") atau angka detik ("1800").
func durenv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
