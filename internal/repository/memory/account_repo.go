package memory

import (
	"context"
	"fmt"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
	"sort"
	"time"
)

func (s *Store) SaveAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()

	if _, exists := s.accounts[account.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
	}

	stored := account.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.ID] = stored
	s.mu.Unlock()

	s.notify(domain.CollectionAccounts)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
	}
	return account.Clone(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.accountsLocked(), nil
}

func (s *Store) accountsLocked() []*domain.Account {
	result := make([]*domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		result = append(result, account.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result
}

func (s *Store) GetPaymentNumber(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	number, exists := s.settings[domain.FieldPaymentNumber]
	if !exists {
		return "", fmt.Errorf("%w: setting %s", repository.ErrNotFound, domain.FieldPaymentNumber)
	}
	return number, nil
}
