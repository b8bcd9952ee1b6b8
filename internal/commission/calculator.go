// Package commission holds the payout policy for a cascade.
package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxTiers is the number of upline positions that can earn a commission.
const MaxTiers = 35

// Tier pays Amount to every ancestor whose depth is in [From, To].
type Tier struct {
	From   int
	To     int
	Amount decimal.Decimal
}

// DefaultTiers is the fixed payout for depths 1 and up. Depth 0 is paid by
// rank and is not part of the table.
var DefaultTiers = []Tier{
	{From: 1, To: 1, Amount: decimal.NewFromInt(35)},
	{From: 2, To: 2, Amount: decimal.NewFromInt(25)},
	{From: 3, To: 3, Amount: decimal.NewFromInt(15)},
	{From: 4, To: 4, Amount: decimal.NewFromInt(10)},
	{From: 5, To: 14, Amount: decimal.NewFromInt(3)},
	{From: 15, To: 34, Amount: decimal.NewFromInt(2)},
}

// Policy parameterises the immediate referrer's payout.
type Policy struct {
	BaseCommission decimal.Decimal
	LevelBonus     decimal.Decimal
	LevelStep      int
}

func DefaultPolicy() Policy {
	return Policy{
		BaseCommission: decimal.NewFromInt(20),
		LevelBonus:     decimal.NewFromInt(5),
		LevelStep:      5,
	}
}

func (p Policy) Validate() error {
	if p.LevelStep <= 0 {
		return fmt.Errorf("level step must be positive, got %d", p.LevelStep)
	}
	if p.BaseCommission.IsNegative() || p.LevelBonus.IsNegative() {
		return errors.New("base commission and level bonus must not be negative")
	}
	return nil
}

type Calculator struct {
	policy Policy
	tiers  []Tier
}

func NewCalculator(policy Policy, tiers []Tier) (*Calculator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if tiers == nil {
		tiers = DefaultTiers
	}
	for i, t := range tiers {
		if t.From < 1 || t.To < t.From || t.To >= MaxTiers || t.Amount.IsNegative() {
			return nil, fmt.Errorf("tier %d: invalid range [%d, %d] or amount %s", i, t.From, t.To, t.Amount)
		}
		if i > 0 && t.From <= tiers[i-1].To {
			return nil, fmt.Errorf("tier %d overlaps tier %d", i, i-1)
		}
	}
	return &Calculator{policy: policy, tiers: tiers}, nil
}

// Rank is the immediate referrer's bonus level: one step per LevelStep direct
// referrals, starting at 1.
func (c *Calculator) Rank(directReferrals int) int {
	if directReferrals < 0 {
		directReferrals = 0
	}
	return directReferrals/c.policy.LevelStep + 1
}

// AmountFor returns the commission owed to the ancestor at depth. Only depth
// 0 depends on the ancestor's direct referral count.
func (c *Calculator) AmountFor(depth, directReferrals int) decimal.Decimal {
	if depth < 0 || depth >= MaxTiers {
		return decimal.Zero
	}
	if depth == 0 {
		bonus := c.policy.LevelBonus.Mul(decimal.NewFromInt(int64(c.Rank(directReferrals) - 1)))
		return c.policy.BaseCommission.Add(bonus)
	}
	for _, t := range c.tiers {
		if depth >= t.From && depth <= t.To {
			return t.Amount
		}
	}
	return decimal.Zero
}
