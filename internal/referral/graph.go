// Package referral indexes accounts by referral code and walks upline chains.
//
// A Graph is built from one immutable account snapshot and is never updated in
// place: callers rebuild it when they take a new snapshot.
package referral

import (
	"referral_ledger/internal/domain"
	"sort"
)

type Graph struct {
	byCode     map[string]*domain.Account
	directs    map[string]int
	duplicates map[string][]string
}

// NewGraph indexes accounts by case-folded referral code. When two accounts
// share a code the later one in the slice wins and the code is reported by
// DuplicateCodes.
func NewGraph(accounts []*domain.Account) *Graph {
	g := &Graph{
		byCode:     make(map[string]*domain.Account, len(accounts)),
		directs:    make(map[string]int),
		duplicates: make(map[string][]string),
	}

	for _, account := range accounts {
		if account == nil {
			continue
		}
		code := domain.NormalizeCode(account.ReferralCode)
		if code != "" {
			if prev, exists := g.byCode[code]; exists && prev.ID != account.ID {
				if len(g.duplicates[code]) == 0 {
					g.duplicates[code] = append(g.duplicates[code], prev.ID)
				}
				g.duplicates[code] = append(g.duplicates[code], account.ID)
			}
			g.byCode[code] = account
		}
		if ref := domain.NormalizeCode(account.ReferrerID); ref != "" {
			g.directs[ref]++
		}
	}

	return g
}

// Lookup resolves a referral code case-insensitively.
func (g *Graph) Lookup(code string) (*domain.Account, bool) {
	account, ok := g.byCode[domain.NormalizeCode(code)]
	return account, ok
}

// DirectReferrals counts accounts in the snapshot whose referrer is code,
// whatever their activation state.
func (g *Graph) DirectReferrals(code string) int {
	return g.directs[domain.NormalizeCode(code)]
}

// Duplicates lists referral codes claimed by more than one account, with the
// ids of the claimants in snapshot order.
func (g *Graph) Duplicates() map[string][]string {
	out := make(map[string][]string, len(g.duplicates))
	for code, ids := range g.duplicates {
		out[code] = append([]string(nil), ids...)
	}
	return out
}

func (g *Graph) DuplicateCodes() []string {
	codes := make([]string, 0, len(g.duplicates))
	for code := range g.duplicates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
