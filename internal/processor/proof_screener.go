package processor

import (
	"referral_ledger/internal/domain"
	"strings"

	"github.com/shopspring/decimal"
)

// ProofScreener scores an activation's payment proof against earlier requests.
// Its result is advisory: flags are logged and returned with the approval but
// never stop it.
type ProofScreener struct {
	patterns  []ProofPattern
	largeSize decimal.Decimal
}

type ProofPattern struct {
	Name        string
	Description string
	Detect      func(req *domain.ActivationRequest, account *domain.Account, history []*domain.ActivationRequest) bool
	Weight      int
}

func NewProofScreener() *ProofScreener {
	ps := &ProofScreener{largeSize: decimal.NewFromInt(10000)}
	ps.patterns = []ProofPattern{
		{
			Name:        "duplicate_trx_id",
			Description: "Transaction id already used by another activation",
			Detect:      ps.detectDuplicateTrxID,
			Weight:      60,
		},
		{
			Name:        "shared_mobile",
			Description: "Paying number used for another account",
			Detect:      ps.detectSharedMobile,
			Weight:      25,
		},
		{
			Name:        "large_amount",
			Description: "Activation amount above the usual range",
			Detect: func(req *domain.ActivationRequest, _ *domain.Account, _ []*domain.ActivationRequest) bool {
				return req.Amount.GreaterThan(ps.largeSize)
			},
			Weight: 20,
		},
		{
			Name:        "account_already_active",
			Description: "Account was activated by an earlier request",
			Detect: func(_ *domain.ActivationRequest, account *domain.Account, _ []*domain.ActivationRequest) bool {
				return account != nil && account.IsActive
			},
			Weight: 40,
		},
	}
	return ps
}

// Screen returns a risk score in [0, 100] and the names of matching patterns.
func (ps *ProofScreener) Screen(req *domain.ActivationRequest, account *domain.Account, history []*domain.ActivationRequest) (int, []string) {
	var score int
	var flags []string

	for _, pattern := range ps.patterns {
		if pattern.Detect(req, account, history) {
			score += pattern.Weight
			flags = append(flags, pattern.Name)
		}
	}

	return min(score, 100), flags
}

func (ps *ProofScreener) detectDuplicateTrxID(req *domain.ActivationRequest, _ *domain.Account, history []*domain.ActivationRequest) bool {
	if req.TrxID == "" {
		return false
	}
	for _, other := range history {
		if other.ID == req.ID || other.Status == domain.StatusRejected {
			continue
		}
		if strings.EqualFold(other.TrxID, req.TrxID) {
			return true
		}
	}
	return false
}

func (ps *ProofScreener) detectSharedMobile(req *domain.ActivationRequest, _ *domain.Account, history []*domain.ActivationRequest) bool {
	for _, other := range history {
		if other.AccountID != req.AccountID && other.MobileNumber == req.MobileNumber {
			return true
		}
	}
	return false
}
