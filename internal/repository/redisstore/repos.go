package redisstore

import (
	"context"
	"fmt"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
	"time"
)

func (s *Store) SaveAccount(ctx context.Context, account *domain.Account) error {
	stored := account.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	return s.insert(ctx, domain.CollectionAccounts, stored.ID, encodeAccount(stored), stored.CreatedAt)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	h, err := s.load(ctx, domain.CollectionAccounts, id)
	if err != nil {
		return nil, err
	}
	return decodeAccount(h)
}

func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	hashes, err := s.loadAll(ctx, domain.CollectionAccounts, false)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.Account, 0, len(hashes))
	for _, h := range hashes {
		account, err := decodeAccount(h)
		if err != nil {
			return nil, err
		}
		result = append(result, account)
	}
	return result, nil
}

func (s *Store) GetPaymentNumber(ctx context.Context) (string, error) {
	number, err := s.rdb.HGet(ctx, settingsKey, domain.FieldPaymentNumber).Result()
	if isNil(err) {
		return "", fmt.Errorf("%w: setting %s", repository.ErrNotFound, domain.FieldPaymentNumber)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get payment number: %w", err)
	}
	return number, nil
}

func (s *Store) SaveActivation(ctx context.Context, req *domain.ActivationRequest) error {
	return s.insert(ctx, domain.CollectionActivations, req.ID, encodeRequest(&req.PaymentRequest), req.Timestamp)
}

func (s *Store) GetActivation(ctx context.Context, id string) (*domain.ActivationRequest, error) {
	req, err := s.getRequest(ctx, domain.CollectionActivations, id)
	if err != nil {
		return nil, err
	}
	return &domain.ActivationRequest{PaymentRequest: *req}, nil
}

func (s *Store) ListActivations(ctx context.Context, status domain.RequestStatus) ([]*domain.ActivationRequest, error) {
	reqs, err := s.listRequests(ctx, domain.CollectionActivations, status)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.ActivationRequest, 0, len(reqs))
	for _, req := range reqs {
		result = append(result, &domain.ActivationRequest{PaymentRequest: *req})
	}
	return result, nil
}

func (s *Store) SaveWithdrawal(ctx context.Context, req *domain.WithdrawalRequest) error {
	return s.insert(ctx, domain.CollectionWithdrawals, req.ID, encodeRequest(&req.PaymentRequest), req.Timestamp)
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	req, err := s.getRequest(ctx, domain.CollectionWithdrawals, id)
	if err != nil {
		return nil, err
	}
	return &domain.WithdrawalRequest{PaymentRequest: *req}, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, status domain.RequestStatus) ([]*domain.WithdrawalRequest, error) {
	reqs, err := s.listRequests(ctx, domain.CollectionWithdrawals, status)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.WithdrawalRequest, 0, len(reqs))
	for _, req := range reqs {
		result = append(result, &domain.WithdrawalRequest{PaymentRequest: *req})
	}
	return result, nil
}

func (s *Store) getRequest(ctx context.Context, collection, id string) (*domain.PaymentRequest, error) {
	h, err := s.load(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	return decodeRequest(h)
}

func (s *Store) listRequests(ctx context.Context, collection string, status domain.RequestStatus) ([]*domain.PaymentRequest, error) {
	hashes, err := s.loadAll(ctx, collection, true)
	if err != nil {
		return nil, err
	}
	var result []*domain.PaymentRequest
	for _, h := range hashes {
		req, err := decodeRequest(h)
		if err != nil {
			return nil, err
		}
		if status == "" || req.Status == status {
			result = append(result, req)
		}
	}
	return result, nil
}
