package memory

import (
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
	"sync"
)

var (
	_ repository.Store   = (*Store)(nil)
	_ repository.Watcher = (*Store)(nil)
)

// Store keeps the whole path space in process memory. Commits are applied to
// staged copies under the write lock and swapped in only when every op
// succeeded.
type Store struct {
	mu          sync.RWMutex
	accounts    map[string]*domain.Account
	activations map[string]*domain.ActivationRequest
	withdrawals map[string]*domain.WithdrawalRequest
	settings    map[string]string

	// commitHook runs before each mutation is staged; a non-nil error aborts
	// the commit.
	commitHook func(op domain.Op) error

	subMu  sync.Mutex
	subs   map[string]map[int]chan repository.Change
	nextID int
}

type Option func(*Store)

// WithCommitHook installs a function called for every mutation during Commit.
func WithCommitHook(hook func(op domain.Op) error) Option {
	return func(s *Store) {
		s.commitHook = hook
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		accounts:    make(map[string]*domain.Account),
		activations: make(map[string]*domain.ActivationRequest),
		withdrawals: make(map[string]*domain.WithdrawalRequest),
		settings:    make(map[string]string),
		subs:        make(map[string]map[int]chan repository.Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for prefix, chans := range s.subs {
		for id, ch := range chans {
			close(ch)
			delete(chans, id)
		}
		delete(s.subs, prefix)
	}
	return nil
}
