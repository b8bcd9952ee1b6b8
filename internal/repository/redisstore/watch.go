package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
)

func (s *Store) publishChange(ctx context.Context, collection string) {
	if err := s.rdb.Publish(ctx, changesChannel+collection, collection).Err(); err != nil {
		s.logger.Warn("Failed to publish change",
			slog.String("collection", collection),
			slog.String("error", err.Error()))
	}
}

// Subscribe listens on the collection's change channel and re-reads the whole
// collection on every message. The first value is sent immediately.
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan repository.Change, error) {
	switch prefix {
	case domain.CollectionAccounts, domain.CollectionActivations,
		domain.CollectionWithdrawals, domain.CollectionSettings:
	default:
		return nil, fmt.Errorf("%w: unknown subtree %q", domain.ErrInvalidRequest, prefix)
	}

	pubsub := s.rdb.Subscribe(ctx, changesChannel+prefix)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", prefix, err)
	}

	out := make(chan repository.Change, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		s.emit(ctx, out, prefix)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				s.emit(ctx, out, prefix)
			}
		}
	}()

	return out, nil
}

func (s *Store) emit(ctx context.Context, out chan repository.Change, prefix string) {
	value, err := s.snapshot(ctx, prefix)
	if err != nil {
		s.logger.Warn("Failed to read subtree",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()))
		return
	}

	change := repository.Change{Prefix: prefix, Value: value}
	select {
	case <-out:
	default:
	}
	select {
	case out <- change:
	case <-ctx.Done():
	}
}

func (s *Store) snapshot(ctx context.Context, prefix string) (any, error) {
	switch prefix {
	case domain.CollectionAccounts:
		return s.ListAccounts(ctx)
	case domain.CollectionActivations:
		return s.ListActivations(ctx, "")
	case domain.CollectionWithdrawals:
		return s.ListWithdrawals(ctx, "")
	default:
		settings, err := s.rdb.HGetAll(ctx, settingsKey).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
		return settings, nil
	}
}
