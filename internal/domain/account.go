package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRootCode is the referral code of the house account. Accounts whose
// referrer is this code sit at the top of the referral tree.
const DefaultRootCode = "ADMIN"

type Account struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ReferralCode string          `json:"referral_code"`
	ReferrerID   string          `json:"referrer_id,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Clone returns a copy that can be handed out of a store without sharing state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// NormalizeCode case-folds a referral code for lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CommissionEdge is one credit produced by a cascade. It is never persisted.
type CommissionEdge struct {
	PayerAccountID string          `json:"payer_account_id"`
	PayeeAccountID string          `json:"payee_account_id"`
	Depth          int             `json:"depth"`
	Amount         decimal.Decimal `json:"amount"`
}

type Stats struct {
	TotalUsers    int             `json:"total_users"`
	ActiveUsers   int             `json:"active_users"`
	TotalHoldings decimal.Decimal `json:"total_holdings"`
}

// ComputeStats summarizes a point-in-time list of accounts.
func ComputeStats(accounts []*Account) Stats {
	stats := Stats{TotalUsers: len(accounts), TotalHoldings: decimal.Zero}
	for _, a := range accounts {
		if a.IsActive {
			stats.ActiveUsers++
		}
		stats.TotalHoldings = stats.TotalHoldings.Add(a.Balance)
	}
	return stats
}
