package service

import (
	"context"
	"fmt"
	"log/slog"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
	"referral_ledger/pkg/metrics"
	"sync"
	"time"
)

// StatsWatcher keeps account statistics current. Stores that can stream
// changes are subscribed to; others are polled.
type StatsWatcher struct {
	accounts repository.AccountRepository
	metrics  *metrics.MetricsCollector
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	latest domain.Stats
}

func NewStatsWatcher(accounts repository.AccountRepository, m *metrics.MetricsCollector, interval time.Duration, logger *slog.Logger) *StatsWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatsWatcher{
		accounts: accounts,
		metrics:  m,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (w *StatsWatcher) Run(ctx context.Context) error {
	if watcher, ok := w.accounts.(repository.Watcher); ok {
		return w.follow(ctx, watcher)
	}
	return w.poll(ctx)
}

func (w *StatsWatcher) follow(ctx context.Context, watcher repository.Watcher) error {
	changes, err := watcher.Subscribe(ctx, domain.CollectionAccounts)
	if err != nil {
		return fmt.Errorf("failed to subscribe to accounts: %w", err)
	}
	w.logger.Info("Watching account changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			accounts, ok := change.Value.([]*domain.Account)
			if !ok {
				w.logger.Warn("Unexpected account change payload",
					slog.String("type", fmt.Sprintf("%T", change.Value)))
				continue
			}
			w.update(domain.ComputeStats(accounts))
		}
	}
}

func (w *StatsWatcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Polling account stats", slog.Duration("interval", w.interval))
	for {
		accounts, err := w.accounts.ListAccounts(ctx)
		if err != nil {
			w.logger.Warn("Failed to read accounts", slog.String("error", err.Error()))
		} else {
			w.update(domain.ComputeStats(accounts))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *StatsWatcher) update(stats domain.Stats) {
	w.mu.Lock()
	w.latest = stats
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.UpdateStats(stats)
	}
}

func (w *StatsWatcher) Latest() domain.Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}
