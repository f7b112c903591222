package commission

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// validTiers builds a tier ladder with strictly rising thresholds and
// non-decreasing bonuses from generated step sizes. Bonus only grows with
// sales on ladders shaped like this; Validate accepts other shapes too.
func validTiers(steps []int) []Tier {
	out := make([]Tier, 0, len(steps))
	threshold, bonus := 0, 0
	for i, s := range steps {
		threshold += s%40 + 1
		bonus += (s * (i + 1)) % 150
		out = append(out, Tier{ThresholdPercent: decimal.NewFromInt(int64(threshold)), Bonus: decimal.NewFromInt(int64(bonus))})
	}
	return out
}

func TestBonusProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	stepsGen := gen.SliceOfN(5, gen.IntRange(0, 1000))

	properties.Property("bonus is monotonic non-decreasing in sales", prop.ForAll(
		func(steps []int, goal, a, b int) bool {
			ts := validTiers(steps)
			if len(ts) == 0 {
				return true
			}
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			g := decimal.NewFromInt(int64(goal))
			return AchievedBonus(decimal.NewFromInt(int64(lo)), g, ts).
				LessThanOrEqual(AchievedBonus(decimal.NewFromInt(int64(hi)), g, ts))
		},
		stepsGen,
		gen.IntRange(1, 100000),
		gen.IntRange(0, 300000),
		gen.IntRange(0, 300000),
	))

	properties.Property("reaching a threshold exactly earns that tier", prop.ForAll(
		func(steps []int, pick int) bool {
			ts := validTiers(steps)
			if len(ts) == 0 {
				return true
			}
			tier := ts[pick%len(ts)]
			goal := decimal.NewFromInt(10000)
			sales := goal.Mul(tier.ThresholdPercent).Div(decimal.NewFromInt(100))
			return AchievedBonus(sales, goal, ts).Equal(tier.Bonus)
		},
		stepsGen,
		gen.IntRange(0, 100),
	))

	properties.Property("generated ladders are valid configs", prop.ForAll(
		func(steps []int) bool {
			ts := validTiers(steps)
			if len(ts) == 0 {
				return true
			}
			return Config{BaseCommissionPercent: decimal.NewFromInt(1), Tiers: ts}.Validate() == nil
		},
		stepsGen,
	))

	properties.TestingRun(t)
}
