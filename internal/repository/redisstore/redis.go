// Package redisstore stores the ledger in Redis hashes. Each entity is a hash at
// "<collection>:<id>" and every collection keeps a sorted set of its ids
// scored by creation time.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var (
	_ repository.Store   = (*Store)(nil)
	_ repository.Watcher = (*Store)(nil)
	_ repository.Pinger  = (*Store)(nil)
)

const (
	settingsKey    = domain.CollectionSettings
	changesChannel = "ledger:changes:"

	hashID           = "id"
	hashName         = "name"
	hashReferralCode = "referral_code"
	hashReferrerID   = "referrer_id"
	hashBalance      = "balance"
	hashIsActive     = "is_active"
	hashCreatedAt    = "created_at"
	hashAccountID    = "account_id"
	hashAmount       = "amount"
	hashMethod       = "method"
	hashMobile       = "mobile_number"
	hashTrxID        = "trx_id"
	hashStatus       = "status"
)

type Store struct {
	rdb        redis.UniversalClient
	logger     *slog.Logger
	maxRetries int

	// beforeExec runs between planning and EXEC on every commit attempt.
	beforeExec func(attempt int)
}

func NewStore(rdb redis.UniversalClient, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{rdb: rdb, logger: logger, maxRetries: 10}
}

func Connect(ctx context.Context, addr, password string, logger *slog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewStore(rdb, logger), nil
}

func (s *Store) Client() redis.UniversalClient {
	return s.rdb
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func entityKey(collection, id string) string {
	return collection + ":" + id
}

func hashField(field string) string {
	switch field {
	case domain.FieldBalance:
		return hashBalance
	case domain.FieldIsActive:
		return hashIsActive
	default:
		return hashStatus
	}
}

func encodeAccount(a *domain.Account) map[string]any {
	return map[string]any{
		hashID:           a.ID,
		hashName:         a.Name,
		hashReferralCode: a.ReferralCode,
		hashReferrerID:   a.ReferrerID,
		hashBalance:      a.Balance.String(),
		hashIsActive:     strconv.FormatBool(a.IsActive),
		hashCreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeAccount(h map[string]string) (*domain.Account, error) {
	balance, err := decimal.NewFromString(h[hashBalance])
	if err != nil {
		return nil, fmt.Errorf("bad balance for account %s: %w", h[hashID], err)
	}
	active, err := strconv.ParseBool(h[hashIsActive])
	if err != nil {
		return nil, fmt.Errorf("bad is_active for account %s: %w", h[hashID], err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, h[hashCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("bad created_at for account %s: %w", h[hashID], err)
	}
	return &domain.Account{
		ID:           h[hashID],
		Name:         h[hashName],
		ReferralCode: h[hashReferralCode],
		ReferrerID:   h[hashReferrerID],
		Balance:      balance,
		IsActive:     active,
		CreatedAt:    createdAt,
	}, nil
}

func encodeRequest(r *domain.PaymentRequest) map[string]any {
	return map[string]any{
		hashID:        r.ID,
		hashAccountID: r.AccountID,
		hashAmount:    r.Amount.String(),
		hashMethod:    string(r.Method),
		hashMobile:    r.MobileNumber,
		hashTrxID:     r.TrxID,
		hashStatus:    string(r.Status),
		hashCreatedAt: r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func decodeRequest(h map[string]string) (*domain.PaymentRequest, error) {
	amount, err := decimal.NewFromString(h[hashAmount])
	if err != nil {
		return nil, fmt.Errorf("bad amount for request %s: %w", h[hashID], err)
	}
	ts, err := time.Parse(time.RFC3339Nano, h[hashCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("bad created_at for request %s: %w", h[hashID], err)
	}
	return &domain.PaymentRequest{
		ID:           h[hashID],
		AccountID:    h[hashAccountID],
		Amount:       amount,
		Method:       domain.PaymentMethod(h[hashMethod]),
		MobileNumber: h[hashMobile],
		TrxID:        h[hashTrxID],
		Status:       domain.RequestStatus(h[hashStatus]),
		Timestamp:    ts,
	}, nil
}

// insert writes a new entity hash and indexes it in one transaction, failing
// if the id exists.
func (s *Store) insert(ctx context.Context, collection, id string, fields map[string]any, createdAt time.Time) error {
	key := entityKey(collection, id)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, key)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.ZAdd(ctx, collection, redis.Z{Score: float64(createdAt.UnixNano()), Member: id})
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return err
	case errors.Is(err, redis.TxFailedErr):
		// another writer created the key between the check and EXEC
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, key)
	case err != nil:
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	s.publishChange(ctx, collection)
	return nil
}

func (s *Store) load(ctx context.Context, collection, id string) (map[string]string, error) {
	h, err := s.rdb.HGetAll(ctx, entityKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", collection, id, err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: %s %s", repository.ErrNotFound, collection, id)
	}
	return h, nil
}

// loadAll reads every hash in a collection in index order inside one
// MULTI block, so the result is a single point-in-time view.
func (s *Store) loadAll(ctx context.Context, collection string, reverse bool) ([]map[string]string, error) {
	var ids []string
	var err error
	if reverse {
		ids, err = s.rdb.ZRevRange(ctx, collection, 0, -1).Result()
	} else {
		ids, err = s.rdb.ZRange(ctx, collection, 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s index: %w", collection, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, entityKey(collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}

	result := make([]map[string]string, 0, len(ids))
	for _, cmd := range cmds {
		if h := cmd.Val(); len(h) > 0 {
			result = append(result, h)
		}
	}
	return result, nil
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
