package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"referral_ledger/internal/api"
	"referral_ledger/internal/auth"
	"referral_ledger/internal/commission"
	"referral_ledger/internal/config"
	"referral_ledger/internal/events"
	"referral_ledger/internal/processor"
	"referral_ledger/internal/repository"
	"referral_ledger/internal/repository/memory"
	"referral_ledger/internal/repository/postgres"
	"referral_ledger/internal/repository/redisstore"
	"referral_ledger/internal/service"
	"referral_ledger/pkg/crypto"
	"referral_ledger/pkg/metrics"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	appName = "referral_ledger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("env", cfg.AppEnv),
		slog.String("store", cfg.StoreBackend),
		slog.String("events", cfg.EventsBackend))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, rdb, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	publisher := openPublisher(cfg, rdb, logger)
	metricsCollector := metrics.NewMetricsCollector(logger)
	notificationService := setupNotificationService(cfg, logger)

	proc, err := processor.NewActivationProcessor(store, processor.Config{
		Policy: commission.Policy{
			BaseCommission: cfg.BaseCommission,
			LevelBonus:     cfg.LevelBonus,
			LevelStep:      cfg.LevelStep,
		},
		RootCode: cfg.RootCode,
		MaxDepth: commission.MaxTiers,
	},
		processor.WithLogger(logger),
		processor.WithMetrics(metricsCollector),
		processor.WithPublisher(publisher),
		processor.WithNotifier(notificationService),
	)
	if err != nil {
		logger.Error("Failed to build processor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	session := auth.NewSession(cfg.AdminPhone, setupSigner(cfg, logger), notificationService,
		cfg.OTPTTL, cfg.SessionTTL, logger)
	apiHandler := api.NewAPIHandler(proc, session, cfg.RequestTimeout, logger)

	watcher := service.NewStatsWatcher(store, metricsCollector, 30*time.Second, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("Stats watcher stopped", slog.String("error", err.Error()))
		}
	}()

	metricsServer := metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg, apiHandler.NewRouter(cfg.CORSOrigins), logger)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	shutdown(logger, httpServer, metricsServer, notificationService, publisher, store)
	logger.Info("Application shutdown complete")
}

func setupLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// openStore returns the configured store. The redis client is returned as
// well so the event publisher can share it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, redis.UniversalClient, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		store, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.DefaultPoolConfig(), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, nil, nil
	case config.BackendRedis:
		store, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Client(), nil
	default:
		logger.Warn("Using in-memory store, data will not survive a restart")
		return memory.NewStore(), nil, nil
	}
}

func openPublisher(cfg *config.Config, rdb redis.UniversalClient, logger *slog.Logger) events.Publisher {
	switch cfg.EventsBackend {
	case config.BackendKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	case config.BackendRedis:
		if rdb == nil {
			rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		}
		return events.NewRedisPublisher(rdb, events.DefaultChannel, logger)
	default:
		return events.NopPublisher{}
	}
}

func setupSigner(cfg *config.Config, logger *slog.Logger) *crypto.Signer {
	secret := cfg.SigningSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("SIGNING_SECRET not set, sessions will not survive a restart")
	}
	return crypto.NewSigner(secret, logger)
}

func setupNotificationService(cfg *config.Config, logger *slog.Logger) *service.NotificationService {
	gateway := service.LogSMSService{Logger: logger}

	return service.NewNotificationService(
		gateway,
		gateway,
		cfg.AdminPhone,
		cfg.NotificationWorkers,
		logger,
	)
}

func startHTTPServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func shutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	notificationService *service.NotificationService,
	publisher events.Publisher,
	store repository.Store,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := notificationService.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}

	if err := publisher.Close(); err != nil {
		logger.Error("Event publisher close failed", slog.String("error", err.Error()))
	}

	if err := store.Close(); err != nil {
		logger.Error("Store close failed", slog.String("error", err.Error()))
	}
}
