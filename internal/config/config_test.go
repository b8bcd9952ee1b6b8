package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendMemory || cfg.EventsBackend != BackendNone {
		t.Errorf("unexpected backends %s/%s", cfg.StoreBackend, cfg.EventsBackend)
	}
	if !cfg.BaseCommission.Equal(decimal.NewFromInt(20)) || !cfg.LevelBonus.Equal(decimal.NewFromInt(5)) || cfg.LevelStep != 5 {
		t.Errorf("unexpected commission policy %s/%s/%d", cfg.BaseCommission, cfg.LevelBonus, cfg.LevelStep)
	}
	if cfg.RootCode != "ADMIN" || cfg.LogLevel != slog.LevelInfo {
		t.Errorf("unexpected root code %q or level %v", cfg.RootCode, cfg.LogLevel)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("EVENTS_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("BASE_COMMISSION", "30.5")
	t.Setenv("LEVEL_STEP", "10")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendPostgres || len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.BaseCommission.Equal(decimal.RequireFromString("30.5")) || cfg.LevelStep != 10 {
		t.Errorf("unexpected policy %s/%d", cfg.BaseCommission, cfg.LevelStep)
	}
	if cfg.SessionTTL != time.Hour || cfg.LogLevel != slog.LevelDebug {
		t.Errorf("unexpected ttl %v or level %v", cfg.SessionTTL, cfg.LogLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEVEL_STEP", "five")
	t.Setenv("OTP_TTL", "soon")

	_, err := Load()

	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"LEVEL_STEP", "OTP_TTL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s in error, got %v", key, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"zero level step", func(c *Config) { c.LevelStep = 0 }, true},
		{"postgres without url", func(c *Config) { c.StoreBackend = BackendPostgres }, true},
		{"unknown store", func(c *Config) { c.StoreBackend = "mongo" }, true},
		{"unknown events", func(c *Config) { c.EventsBackend = "nats" }, true},
		{"production without secret", func(c *Config) { c.AppEnv = "production" }, true},
		{"negative bonus", func(c *Config) { c.LevelBonus = decimal.NewFromInt(-1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				AppEnv:         "development",
				StoreBackend:   BackendMemory,
				EventsBackend:  BackendNone,
				BaseCommission: decimal.NewFromInt(20),
				LevelBonus:     decimal.NewFromInt(5),
				LevelStep:      5,
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}
