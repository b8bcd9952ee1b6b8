package memory

import (
	"context"
	"fmt"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
	"sort"
)

func (s *Store) SaveActivation(ctx context.Context, req *domain.ActivationRequest) error {
	s.mu.Lock()

	if _, exists := s.activations[req.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: activation %s", repository.ErrDuplicate, req.ID)
	}
	s.activations[req.ID] = req.Clone()
	s.mu.Unlock()

	s.notify(domain.CollectionActivations)
	return nil
}

func (s *Store) GetActivation(ctx context.Context, id string) (*domain.ActivationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.activations[id]
	if !exists {
		return nil, fmt.Errorf("%w: activation %s", repository.ErrNotFound, id)
	}
	return req.Clone(), nil
}

func (s *Store) ListActivations(ctx context.Context, status domain.RequestStatus) ([]*domain.ActivationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.activationsLocked(status), nil
}

func (s *Store) activationsLocked(status domain.RequestStatus) []*domain.ActivationRequest {
	var result []*domain.ActivationRequest
	for _, req := range s.activations {
		if status == "" || req.Status == status {
			result = append(result, req.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	return result
}

func (s *Store) SaveWithdrawal(ctx context.Context, req *domain.WithdrawalRequest) error {
	s.mu.Lock()

	if _, exists := s.withdrawals[req.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: withdrawal %s", repository.ErrDuplicate, req.ID)
	}
	s.withdrawals[req.ID] = req.Clone()
	s.mu.Unlock()

	s.notify(domain.CollectionWithdrawals)
	return nil
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.withdrawals[id]
	if !exists {
		return nil, fmt.Errorf("%w: withdrawal %s", repository.ErrNotFound, id)
	}
	return req.Clone(), nil
}

func (s *Store) ListWithdrawals(ctx context.Context, status domain.RequestStatus) ([]*domain.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.withdrawalsLocked(status), nil
}

func (s *Store) withdrawalsLocked(status domain.RequestStatus) []*domain.WithdrawalRequest {
	var result []*domain.WithdrawalRequest
	for _, req := range s.withdrawals {
		if status == "" || req.Status == status {
			result = append(result, req.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	return result
}
