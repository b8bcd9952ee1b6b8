package postgres

import (
	"context"
	"fmt"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, name, referral_code, referrer_id, balance::text, is_active, created_at`

func (s *Store) SaveAccount(ctx context.Context, account *domain.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, name, referral_code, referrer_id, balance, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		account.ID, account.Name, account.ReferralCode, account.ReferrerID,
		account.Balance.String(), account.IsActive, createdAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	account, err := scanAccount(row)
	if notFound(err) {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListAccounts reads every account in one statement, which gives a consistent
// snapshot under READ COMMITTED.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		result = append(result, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return result, nil
}

func (s *Store) GetPaymentNumber(ctx context.Context) (string, error) {
	var number string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, domain.FieldPaymentNumber).Scan(&number)
	if notFound(err) {
		return "", fmt.Errorf("%w: setting %s", repository.ErrNotFound, domain.FieldPaymentNumber)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get payment number: %w", err)
	}
	return number, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account    domain.Account
		balanceStr string
	)
	err := row.Scan(&account.ID, &account.Name, &account.ReferralCode, &account.ReferrerID,
		&balanceStr, &account.IsActive, &account.CreatedAt)
	if err != nil {
		return nil, err
	}

	account.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("bad balance %q for account %s: %w", balanceStr, account.ID, err)
	}
	return &account, nil
}
