// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendKafka    = "kafka"
	BackendNone     = "none"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	LogLevel    slog.Level

	StoreBackend  string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	EventsBackend string
	KafkaBrokers  []string
	KafkaTopic    string

	BaseCommission decimal.Decimal
	LevelBonus     decimal.Decimal
	LevelStep      int
	RootCode       string

	AdminPhone    string
	SigningSecret string
	SessionTTL    time.Duration
	OTPTTL        time.Duration

	NotificationWorkers int
	RequestTimeout      time.Duration
	CORSOrigins         []string
}

// Load reads .env if present and then the process environment. Values that
// are set but unparseable are reported together.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    p.level("LOG_LEVEL", slog.LevelInfo),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		EventsBackend: strings.ToLower(getEnv("EVENTS_BACKEND", BackendNone)),
		KafkaBrokers:  splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "referral-ledger-events"),

		BaseCommission: p.decimal("BASE_COMMISSION", decimal.NewFromInt(20)),
		LevelBonus:     p.decimal("LEVEL_BONUS", decimal.NewFromInt(5)),
		LevelStep:      p.int("LEVEL_STEP", 5),
		RootCode:       getEnv("ROOT_REFERRAL_CODE", "ADMIN"),

		AdminPhone:    getEnv("ADMIN_PHONE", "01816395401"),
		SigningSecret: getEnv("SIGNING_SECRET", ""),
		SessionTTL:    p.duration("SESSION_TTL", 12*time.Hour),
		OTPTTL:        p.duration("OTP_TTL", 5*time.Minute),

		NotificationWorkers: p.int("NOTIFICATION_WORKERS", 4),
		RequestTimeout:      p.duration("REQUEST_TIMEOUT", 30*time.Second),
		CORSOrigins:         splitList(getEnv("CORS_ORIGINS", "*")),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.EventsBackend {
	case BackendNone, BackendRedis:
	case BackendKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_BACKEND %q", c.EventsBackend))
	}

	if c.LevelStep <= 0 {
		errs = append(errs, fmt.Errorf("LEVEL_STEP must be positive, got %d", c.LevelStep))
	}
	if c.BaseCommission.IsNegative() || c.LevelBonus.IsNegative() {
		errs = append(errs, errors.New("BASE_COMMISSION and LEVEL_BONUS must not be negative"))
	}
	if c.SigningSecret == "" && c.AppEnv == "production" {
		errs = append(errs, errors.New("SIGNING_SECRET is required in production"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parser collects errors for set-but-invalid values instead of silently
// falling back.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return fallback
	}
	return d
}

func (p *parser) decimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return fallback
	}
	return d
}

func (p *parser) level(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a log level", key, v))
		return fallback
	}
	return level
}
