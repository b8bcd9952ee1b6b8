package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type hashWrite struct {
	key, field, value string
}

// Commit applies the write set with optimistic locking: every touched hash is
// WATCHed, guards and current balances are read, and the writes go out in one
// MULTI/EXEC. A concurrent writer aborts the EXEC and the whole attempt is
// retried against fresh values.
func (s *Store) Commit(ctx context.Context, ws *domain.WriteSet) error {
	if err := ws.Validate(); err != nil {
		return err
	}

	keys, collections, err := touchedKeys(ws)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			writes, err := s.plan(ctx, tx, ws)
			if err != nil {
				return err
			}
			if s.beforeExec != nil {
				s.beforeExec(attempt)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, w := range writes {
					pipe.HSet(ctx, w.key, w.field, w.value)
				}
				return nil
			})
			return err
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			s.logger.DebugContext(ctx, "Commit conflicted, retrying", slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return err
		}

		for collection := range collections {
			s.publishChange(ctx, collection)
		}
		return nil
	}
	return fmt.Errorf("commit aborted after %d conflicting attempts", s.maxRetries)
}

// plan checks guards and entity existence under WATCH and resolves every op to
// an absolute hash write.
func (s *Store) plan(ctx context.Context, tx *redis.Tx, ws *domain.WriteSet) ([]hashWrite, error) {
	for _, guard := range ws.Guards() {
		key, field, err := location(guard.Path)
		if err != nil {
			return nil, err
		}
		current, err := tx.HGet(ctx, key, field).Result()
		switch {
		case isNil(err) && guard.Path == domain.PaymentNumberPath:
			current = ""
		case isNil(err):
			return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, guard.Path)
		case err != nil:
			return nil, fmt.Errorf("failed to read %s: %w", guard.Path, err)
		}
		if current != domain.FormatValue(guard.Value) {
			return nil, fmt.Errorf("%w: %s is %s, expected %s",
				repository.ErrPreconditionFailed, guard.Path, current, domain.FormatValue(guard.Value))
		}
	}

	balances := make(map[string]decimal.Decimal)
	var writes []hashWrite
	for _, op := range ws.Mutations() {
		key, field, err := location(op.Path)
		if err != nil {
			return nil, err
		}

		if key != settingsKey {
			exists, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", key, err)
			}
			if exists == 0 {
				return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, op.Path)
			}
		}

		if op.Kind != domain.OpIncrement {
			writes = append(writes, hashWrite{key: key, field: field, value: domain.FormatValue(op.Value)})
			if field == hashBalance {
				balances[key] = op.Value.(decimal.Decimal)
			}
			continue
		}

		current, ok := balances[key]
		if !ok {
			raw, err := tx.HGet(ctx, key, field).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", op.Path, err)
			}
			current, err = decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s holds %q", domain.ErrDataInconsistency, op.Path, raw)
			}
		}
		balances[key] = current.Add(op.Delta)
		writes = append(writes, hashWrite{key: key, field: field, value: balances[key].String()})
	}
	return writes, nil
}

func location(p domain.Path) (key, field string, err error) {
	ref, err := domain.ParsePath(p)
	if err != nil {
		return "", "", err
	}
	if ref.Collection == domain.CollectionSettings {
		return settingsKey, ref.Field, nil
	}
	return entityKey(ref.Collection, ref.ID), hashField(ref.Field), nil
}

func touchedKeys(ws *domain.WriteSet) ([]string, map[string]struct{}, error) {
	seen := make(map[string]struct{})
	collections := make(map[string]struct{})
	var keys []string
	for _, op := range ws.Ops {
		key, _, err := location(op.Path)
		if err != nil {
			return nil, nil, err
		}
		if op.Kind != domain.OpExpect {
			ref, _ := domain.ParsePath(op.Path)
			collections[ref.Collection] = struct{}{}
		}
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys, collections, nil
}
