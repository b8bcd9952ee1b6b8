package ledger

import (
	"context"
	"errors"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository/memory"
	"testing"

	"github.com/shopspring/decimal"
)

func TestActivationWriteSet_SkipsZeroAndMergesPayees(t *testing.T) {
	credits := []domain.CommissionEdge{
		{PayeeAccountID: "p1", Depth: 0, Amount: decimal.NewFromInt(25)},
		{PayeeAccountID: "p2", Depth: 1, Amount: decimal.Zero},
		{PayeeAccountID: "p3", Depth: 2, Amount: decimal.NewFromInt(25)},
		{PayeeAccountID: "p1", Depth: 3, Amount: decimal.NewFromInt(15)},
	}

	ws := ActivationWriteSet("act1", "acc1", credits)

	incs := ws.Increments()
	if len(incs) != 2 {
		t.Fatalf("expected 2 balance entries, got %d: %v", len(incs), incs)
	}
	if _, ok := incs[domain.AccountBalancePath("p2")]; ok {
		t.Errorf("zero credit produced a balance entry")
	}
	if got := incs[domain.AccountBalancePath("p1")]; !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected merged credit 40 for p1, got %s", got)
	}
	guards := ws.Guards()
	if len(guards) != 1 || guards[0].Path != domain.ActivationStatusPath("act1") || guards[0].Value != domain.StatusPending {
		t.Errorf("expected pending guard on activation status, got %+v", guards)
	}
	if err := ws.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

type failingCommitter struct{ err error }

func (f failingCommitter) Commit(context.Context, *domain.WriteSet) error { return f.err }

func TestLedger_ApplyMapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"store outage", errors.New("dial tcp: refused"), domain.ErrStoreFailure},
		{"missing path", domain.ErrNotFound, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(failingCommitter{err: tt.err}, nil)

			err := l.Apply(context.Background(), CreditWriteSet("a", decimal.NewFromInt(1)))

			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLedger_ApplyGuardFailureIsInvalidState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	req := &domain.WithdrawalRequest{PaymentRequest: domain.PaymentRequest{ID: "w1", Status: domain.StatusApproved}}
	_ = store.SaveWithdrawal(ctx, req)
	l := New(store, nil)

	err := l.Apply(ctx, WithdrawalWriteSet("w1"))

	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
