package postgres

import (
	"context"
	"fmt"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	tableActivations = "activation_requests"
	tableWithdrawals = "withdrawal_requests"

	requestColumns = `id, account_id, amount::text, method, mobile_number, trx_id, status, created_at`
)

func (s *Store) SaveActivation(ctx context.Context, req *domain.ActivationRequest) error {
	return s.insertRequest(ctx, tableActivations, "activation", &req.PaymentRequest)
}

func (s *Store) GetActivation(ctx context.Context, id string) (*domain.ActivationRequest, error) {
	req, err := s.getRequest(ctx, tableActivations, "activation", id)
	if err != nil {
		return nil, err
	}
	return &domain.ActivationRequest{PaymentRequest: *req}, nil
}

func (s *Store) ListActivations(ctx context.Context, status domain.RequestStatus) ([]*domain.ActivationRequest, error) {
	reqs, err := s.listRequests(ctx, tableActivations, status)
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
	return s.insertRequest(ctx, tableWithdrawals, "withdrawal", &req.PaymentRequest)
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	req, err := s.getRequest(ctx, tableWithdrawals, "withdrawal", id)
	if err != nil {
		return nil, err
	}
	return &domain.WithdrawalRequest{PaymentRequest: *req}, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, status domain.RequestStatus) ([]*domain.WithdrawalRequest, error) {
	reqs, err := s.listRequests(ctx, tableWithdrawals, status)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.WithdrawalRequest, 0, len(reqs))
	for _, req := range reqs {
		result = append(result, &domain.WithdrawalRequest{PaymentRequest: *req})
	}
	return result, nil
}

func (s *Store) insertRequest(ctx context.Context, table, kind string, req *domain.PaymentRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+table+` (id, account_id, amount, method, mobile_number, trx_id, status, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)`,
		req.ID, req.AccountID, req.Amount.String(), string(req.Method),
		req.MobileNumber, req.TrxID, string(req.Status), req.Timestamp)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %s", repository.ErrDuplicate, kind, req.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", kind, err)
	}
	return nil
}

func (s *Store) getRequest(ctx context.Context, table, kind, id string) (*domain.PaymentRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM `+table+` WHERE id = $1`, id)

	req, err := scanRequest(row)
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s %s", repository.ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return req, nil
}

// listRequests returns newest first. An empty status lists everything.
func (s *Store) listRequests(ctx context.Context, table string, status domain.RequestStatus) ([]*domain.PaymentRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM `+table+`
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var result []*domain.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return result, nil
}

func scanRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	var (
		req                      domain.PaymentRequest
		amountStr, method, state string
	)
	err := row.Scan(&req.ID, &req.AccountID, &amountStr, &method,
		&req.MobileNumber, &req.TrxID, &state, &req.Timestamp)
	if err != nil {
		return nil, err
	}

	req.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("bad amount %q for request %s: %w", amountStr, req.ID, err)
	}
	req.Method = domain.PaymentMethod(method)
	req.Status = domain.RequestStatus(state)
	return &req, nil
}
