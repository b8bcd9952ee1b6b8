// Package ledger turns state transitions into guarded write sets and submits
// them to the store as single atomic commits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"

	"github.com/shopspring/decimal"
)

// ActivationWriteSet approves an activation, activates its account and credits
// every non-zero commission. Credits to the same payee are merged, keeping the
// order in which payees first appear.
func ActivationWriteSet(activationID, accountID string, credits []domain.CommissionEdge) *domain.WriteSet {
	ws := domain.NewWriteSet().
		Expect(domain.ActivationStatusPath(activationID), domain.StatusPending).
		Set(domain.ActivationStatusPath(activationID), domain.StatusApproved).
		Set(domain.AccountActivePath(accountID), true)

	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, c := range credits {
		if !c.Amount.IsPositive() {
			continue
		}
		if _, seen := totals[c.PayeeAccountID]; !seen {
			order = append(order, c.PayeeAccountID)
		}
		totals[c.PayeeAccountID] = totals[c.PayeeAccountID].Add(c.Amount)
	}
	for _, payee := range order {
		ws.Increment(domain.AccountBalancePath(payee), totals[payee])
	}

	return ws
}

func RejectionWriteSet(activationID string) *domain.WriteSet {
	return domain.NewWriteSet().
		Expect(domain.ActivationStatusPath(activationID), domain.StatusPending).
		Set(domain.ActivationStatusPath(activationID), domain.StatusRejected)
}

func WithdrawalWriteSet(withdrawalID string) *domain.WriteSet {
	return domain.NewWriteSet().
		Expect(domain.WithdrawalStatusPath(withdrawalID), domain.StatusPending).
		Set(domain.WithdrawalStatusPath(withdrawalID), domain.StatusApproved)
}

func CreditWriteSet(accountID string, amount decimal.Decimal) *domain.WriteSet {
	return domain.NewWriteSet().Increment(domain.AccountBalancePath(accountID), amount)
}

func PaymentNumberWriteSet(number string) *domain.WriteSet {
	return domain.NewWriteSet().Set(domain.PaymentNumberPath, number)
}

type Ledger struct {
	committer repository.Committer
	logger    *slog.Logger
}

func New(committer repository.Committer, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{committer: committer, logger: logger}
}

// Apply submits ws once. A failed guard is reported as domain.ErrInvalidState;
// store errors other than validation and missing paths are wrapped in
// domain.ErrStoreFailure. Nothing is retried here.
func (l *Ledger) Apply(ctx context.Context, ws *domain.WriteSet) error {
	err := l.committer.Commit(ctx, ws)
	switch {
	case err == nil:
		l.logger.DebugContext(ctx, "Write set committed",
			slog.Int("ops", len(ws.Ops)))
		return nil
	case errors.Is(err, repository.ErrPreconditionFailed):
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, err)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidRequest):
		return err
	default:
		l.logger.ErrorContext(ctx, "Write set commit failed",
			slog.Int("ops", len(ws.Ops)),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
	}
}
