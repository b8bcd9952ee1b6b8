package memory

import (
	"context"
	"fmt"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

// staged holds copies of every entity a commit touches. Nothing in it is
// visible to readers until swap.
type staged struct {
	accounts    map[string]*domain.Account
	activations map[string]*domain.ActivationRequest
	withdrawals map[string]*domain.WithdrawalRequest
	settings    map[string]string
	touched     map[string]struct{}
}

func (s *Store) Commit(ctx context.Context, ws *domain.WriteSet) error {
	if err := ws.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	st := &staged{
		accounts:    make(map[string]*domain.Account),
		activations: make(map[string]*domain.ActivationRequest),
		withdrawals: make(map[string]*domain.WithdrawalRequest),
		settings:    make(map[string]string),
		touched:     make(map[string]struct{}),
	}

	for _, guard := range ws.Guards() {
		current, err := s.readLocked(st, guard.Path)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if domain.FormatValue(current) != domain.FormatValue(guard.Value) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s is %v, expected %v",
				repository.ErrPreconditionFailed, guard.Path, current, guard.Value)
		}
	}

	for _, op := range ws.Mutations() {
		if s.commitHook != nil {
			if err := s.commitHook(op); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("apply %s %s: %w", op.Kind, op.Path, err)
			}
		}
		if err := s.applyLocked(st, op); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	s.swapLocked(st)
	s.mu.Unlock()

	for collection := range st.touched {
		s.notify(collection)
	}
	return nil
}

func (s *Store) readLocked(st *staged, p domain.Path) (any, error) {
	ref, err := domain.ParsePath(p)
	if err != nil {
		return nil, err
	}

	switch ref.Collection {
	case domain.CollectionAccounts:
		account, err := s.stagedAccount(st, ref.ID)
		if err != nil {
			return nil, err
		}
		if ref.Field == domain.FieldBalance {
			return account.Balance, nil
		}
		return account.IsActive, nil
	case domain.CollectionActivations:
		req, err := s.stagedActivation(st, ref.ID)
		if err != nil {
			return nil, err
		}
		return req.Status, nil
	case domain.CollectionWithdrawals:
		req, err := s.stagedWithdrawal(st, ref.ID)
		if err != nil {
			return nil, err
		}
		return req.Status, nil
	default:
		if v, ok := st.settings[ref.Field]; ok {
			return v, nil
		}
		return s.settings[ref.Field], nil
	}
}

func (s *Store) applyLocked(st *staged, op domain.Op) error {
	ref, err := domain.ParsePath(op.Path)
	if err != nil {
		return err
	}
	st.touched[ref.Collection] = struct{}{}

	switch ref.Collection {
	case domain.CollectionAccounts:
		account, err := s.stagedAccount(st, ref.ID)
		if err != nil {
			return err
		}
		switch {
		case op.Kind == domain.OpIncrement:
			account.Balance = account.Balance.Add(op.Delta)
		case ref.Field == domain.FieldBalance:
			account.Balance = op.Value.(decimal.Decimal)
		default:
			account.IsActive = op.Value.(bool)
		}
	case domain.CollectionActivations:
		req, err := s.stagedActivation(st, ref.ID)
		if err != nil {
			return err
		}
		req.Status = op.Value.(domain.RequestStatus)
	case domain.CollectionWithdrawals:
		req, err := s.stagedWithdrawal(st, ref.ID)
		if err != nil {
			return err
		}
		req.Status = op.Value.(domain.RequestStatus)
	default:
		st.settings[ref.Field] = op.Value.(string)
	}
	return nil
}

func (s *Store) stagedAccount(st *staged, id string) (*domain.Account, error) {
	if account, ok := st.accounts[id]; ok {
		return account, nil
	}
	account, exists := s.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
	}
	st.accounts[id] = account.Clone()
	return st.accounts[id], nil
}

func (s *Store) stagedActivation(st *staged, id string) (*domain.ActivationRequest, error) {
	if req, ok := st.activations[id]; ok {
		return req, nil
	}
	req, exists := s.activations[id]
	if !exists {
		return nil, fmt.Errorf("%w: activation %s", repository.ErrNotFound, id)
	}
	st.activations[id] = req.Clone()
	return st.activations[id], nil
}

func (s *Store) stagedWithdrawal(st *staged, id string) (*domain.WithdrawalRequest, error) {
	if req, ok := st.withdrawals[id]; ok {
		return req, nil
	}
	req, exists := s.withdrawals[id]
	if !exists {
		return nil, fmt.Errorf("%w: withdrawal %s", repository.ErrNotFound, id)
	}
	st.withdrawals[id] = req.Clone()
	return st.withdrawals[id], nil
}

func (s *Store) swapLocked(st *staged) {
	for id, account := range st.accounts {
		s.accounts[id] = account
	}
	for id, req := range st.activations {
		s.activations[id] = req
	}
	for id, req := range st.withdrawals {
		s.withdrawals[id] = req
	}
	for k, v := range st.settings {
		s.settings[k] = v
	}
}
