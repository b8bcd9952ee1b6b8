package repository

import (
	"context"
	"errors"
	"referral_ledger/internal/domain"
)

type AccountRepository interface {
	SaveAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	// ListAccounts returns a point-in-time copy of every account.
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
}

type RequestRepository interface {
	SaveActivation(ctx context.Context, req *domain.ActivationRequest) error
	GetActivation(ctx context.Context, id string) (*domain.ActivationRequest, error)
	ListActivations(ctx context.Context, status domain.RequestStatus) ([]*domain.ActivationRequest, error)

	SaveWithdrawal(ctx context.Context, req *domain.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, status domain.RequestStatus) ([]*domain.WithdrawalRequest, error)
}

type SettingsRepository interface {
	GetPaymentNumber(ctx context.Context) (string, error)
}

// Committer applies a write set atomically: every op lands or none does.
type Committer interface {
	Commit(ctx context.Context, ws *domain.WriteSet) error
}

type Store interface {
	AccountRepository
	RequestRepository
	SettingsRepository
	Committer
	Close() error
}

// Change is delivered by a Watcher after every committed write touching the
// subscribed subtree. Value holds the full current value of the subtree.
type Change struct {
	Prefix string
	Value  any
}

type Watcher interface {
	Subscribe(ctx context.Context, prefix string) (<-chan Change, error)
}

// Pinger is implemented by stores backed by a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	ErrNotFound           = domain.ErrNotFound
	ErrDuplicate          = errors.New("duplicate entry")
	ErrPreconditionFailed = errors.New("precondition failed")
)
