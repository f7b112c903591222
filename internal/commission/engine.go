// Package commission computes seller commission and goal bonuses.
package commission

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientTierConfig is returned when removing the last bonus tier.
	ErrInsufficientTierConfig = errors.New("commission config must keep at least one bonus tier")
	// ErrInvalidConfig is returned when a config fails validation.
	ErrInvalidConfig = errors.New("invalid commission config")
	// ErrTierNotFound is returned for an out-of-range tier index.
	ErrTierNotFound = errors.New("bonus tier not found")
)

var hundred = decimal.NewFromInt(100)

// Tier pays Bonus once a seller reaches ThresholdPercent of the monthly goal.
type Tier struct {
	ThresholdPercent decimal.Decimal `json:"thresholdPercent"`
	Bonus            decimal.Decimal `json:"bonus"`
}

// Config is the commission policy of a branch.
type Config struct {
	BaseCommissionPercent decimal.Decimal `json:"baseCommissionPercent"`
	Tiers                 []Tier          `json:"tiers"`
}

// DefaultConfig is used by branches that never saved a policy.
func DefaultConfig() Config {
	return Config{
		BaseCommissionPercent: decimal.NewFromInt(1),
		Tiers: []Tier{
			{ThresholdPercent: decimal.NewFromInt(80), Bonus: decimal.NewFromInt(100)},
			{ThresholdPercent: decimal.NewFromInt(90), Bonus: decimal.NewFromInt(150)},
			{ThresholdPercent: decimal.NewFromInt(100), Bonus: decimal.NewFromInt(200)},
			{ThresholdPercent: decimal.NewFromInt(110), Bonus: decimal.NewFromInt(300)},
		},
	}
}

// Validate checks the percent range and every tier. Tier order, repeated
// thresholds and bonus shape are left to the branch; a repeated threshold pays
// its largest bonus.
func (c Config) Validate() error {
	if c.BaseCommissionPercent.IsNegative() || c.BaseCommissionPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: base commission percent must be between 0 and 100", ErrInvalidConfig)
	}
	if len(c.Tiers) == 0 {
		return ErrInsufficientTierConfig
	}
	for _, t := range c.Tiers {
		if !t.ThresholdPercent.IsPositive() {
			return fmt.Errorf("%w: tier threshold must be greater than 0", ErrInvalidConfig)
		}
		if t.Bonus.IsNegative() {
			return fmt.Errorf("%w: tier bonus must not be negative", ErrInvalidConfig)
		}
	}
	return nil
}

// Normalised returns a copy with tiers sorted by ascending threshold.
func (c Config) Normalised() Config {
	tiers := slices.Clone(c.Tiers)
	slices.SortStableFunc(tiers, func(a, b Tier) int { return a.ThresholdPercent.Cmp(b.ThresholdPercent) })
	return Config{BaseCommissionPercent: c.BaseCommissionPercent, Tiers: tiers}
}

// AddTier returns a copy of c with t appended. c itself is never modified.
func (c Config) AddTier(t Tier) (Config, error) {
	next := Config{BaseCommissionPercent: c.BaseCommissionPercent, Tiers: append(slices.Clone(c.Tiers), t)}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next.Normalised(), nil
}

// RemoveTier returns a copy of c without the tier at index i. Removing the
// only remaining tier fails and c is returned unchanged.
func (c Config) RemoveTier(i int) (Config, error) {
	if i < 0 || i >= len(c.Tiers) {
		return c, ErrTierNotFound
	}
	if len(c.Tiers) <= 1 {
		return c, ErrInsufficientTierConfig
	}
	tiers := slices.Delete(slices.Clone(c.Tiers), i, i+1)
	return Config{BaseCommissionPercent: c.BaseCommissionPercent, Tiers: tiers}, nil
}

// BaseCommission returns sales × percent / 100.
func BaseCommission(sales, percent decimal.Decimal) decimal.Decimal {
	return sales.Mul(percent).Div(hundred)
}

// AchievedPercent returns sales / goal × 100, or 0 without a positive goal.
func AchievedPercent(sales, goal decimal.Decimal) decimal.Decimal {
	if !goal.IsPositive() {
		return decimal.Zero
	}
	return sales.Mul(hundred).Div(goal)
}

// AchievedBonus pays the bonus of the highest tier whose threshold is at or
// below the achieved percent. Lower tiers are not added on top.
func AchievedBonus(sales, goal decimal.Decimal, tiers []Tier) decimal.Decimal {
	return bonusFor(AchievedPercent(sales, goal), tiers)
}

func bonusFor(achieved decimal.Decimal, tiers []Tier) decimal.Decimal {
	desc := slices.Clone(tiers)
	slices.SortStableFunc(desc, func(a, b Tier) int {
		if c := b.ThresholdPercent.Cmp(a.ThresholdPercent); c != 0 {
			return c
		}
		return b.Bonus.Cmp(a.Bonus)
	})
	for _, t := range desc {
		if t.ThresholdPercent.LessThanOrEqual(achieved) {
			return t.Bonus
		}
	}
	return decimal.Zero
}

// TierProgress returns how far achieved is towards tier, clamped to 0–100.
func TierProgress(achieved decimal.Decimal, tier Tier) decimal.Decimal {
	if !tier.ThresholdPercent.IsPositive() {
		return decimal.Zero
	}
	p := achieved.Mul(hundred).Div(tier.ThresholdPercent)
	switch {
	case p.IsNegative():
		return decimal.Zero
	case p.GreaterThan(hundred):
		return hundred
	}
	return p
}

// TotalEarnings returns base + bonus.
func TotalEarnings(base, bonus decimal.Decimal) decimal.Decimal {
	return base.Add(bonus)
}

// TierStatus is the progress of one tier.
type TierStatus struct {
	Tier     Tier            `json:"tier"`
	Progress decimal.Decimal `json:"progress"`
	Achieved bool            `json:"achieved"`
}

// Earnings summarises a seller's month.
type Earnings struct {
	SalesTotal      decimal.Decimal  `json:"salesTotal"`
	Goal            decimal.Decimal  `json:"goal"`
	AchievedPercent decimal.Decimal  `json:"achievedPercent"`
	BaseCommission  decimal.Decimal  `json:"baseCommission"`
	Bonus           decimal.Decimal  `json:"bonus"`
	Total           decimal.Decimal  `json:"total"`
	Tiers           []TierStatus     `json:"tiers"`
	NextTier        *Tier            `json:"nextTier,omitempty"`
	MissingForNext  *decimal.Decimal `json:"missingForNext,omitempty"`
}

// Evaluate assembles the earnings of a seller with sales against goal.
func Evaluate(sales, goal decimal.Decimal, cfg Config) Earnings {
	cfg = cfg.Normalised()
	achieved := AchievedPercent(sales, goal)
	base := BaseCommission(sales, cfg.BaseCommissionPercent)
	bonus := bonusFor(achieved, cfg.Tiers)
	out := Earnings{
		SalesTotal:      sales,
		Goal:            goal,
		AchievedPercent: achieved.Round(2),
		BaseCommission:  base.Round(2),
		Bonus:           bonus,
		Total:           TotalEarnings(base, bonus).Round(2),
		Tiers:           make([]TierStatus, 0, len(cfg.Tiers)),
	}
	for _, t := range cfg.Tiers {
		progress := TierProgress(achieved, t)
		out.Tiers = append(out.Tiers, TierStatus{Tier: t, Progress: progress.Round(2), Achieved: progress.GreaterThanOrEqual(hundred)})
		if out.NextTier == nil && t.ThresholdPercent.GreaterThan(achieved) && goal.IsPositive() {
			next := t
			missing := goal.Mul(t.ThresholdPercent).Div(hundred).Sub(sales).Round(2)
			out.NextTier = &next
			out.MissingForNext = &missing
		}
	}
	return out
}
