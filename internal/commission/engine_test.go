package commission

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tiers(pairs ...string) []Tier {
	out := make([]Tier, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Tier{ThresholdPercent: d(pairs[i]), Bonus: d(pairs[i+1])})
	}
	return out
}

func TestAchievedBonusScenarioD(t *testing.T) {
	ts := tiers("80", "100", "90", "150", "100", "200")
	if got := AchievedPercent(d("9000"), d("10000")); !got.Equal(d("90")) {
		t.Fatalf("expected 90%%, got %s", got)
	}
	if got := AchievedBonus(d("9000"), d("10000"), ts); !got.Equal(d("150")) {
		t.Fatalf("expected bonus 150 at the 90%% boundary, got %s", got)
	}
}

func TestAchievedBonusIgnoresTierOrder(t *testing.T) {
	ts := tiers("100", "200", "80", "100", "90", "150")
	if got := AchievedBonus(d("9500"), d("10000"), ts); !got.Equal(d("150")) {
		t.Fatalf("expected 150, got %s", got)
	}
	if got := AchievedBonus(d("7999.99"), d("10000"), ts); !got.IsZero() {
		t.Fatalf("expected no bonus below the first tier, got %s", got)
	}
}

func TestZeroGoalDegradesToZero(t *testing.T) {
	if got := AchievedPercent(d("5000"), decimal.Zero); !got.IsZero() {
		t.Fatalf("expected 0%%, got %s", got)
	}
	if got := AchievedBonus(d("5000"), decimal.Zero, DefaultConfig().Tiers); !got.IsZero() {
		t.Fatalf("expected no bonus, got %s", got)
	}
}

func TestBaseCommissionAndTotal(t *testing.T) {
	base := BaseCommission(d("9000"), d("1.5"))
	if !base.Equal(d("135")) {
		t.Fatalf("expected 135, got %s", base)
	}
	if got := TotalEarnings(base, d("150")); !got.Equal(d("285")) {
		t.Fatalf("expected 285, got %s", got)
	}
}

func TestTierProgressClamps(t *testing.T) {
	tier := Tier{ThresholdPercent: d("80"), Bonus: d("100")}
	if got := TierProgress(d("40"), tier); !got.Equal(d("50")) {
		t.Fatalf("expected 50, got %s", got)
	}
	if got := TierProgress(d("200"), tier); !got.Equal(d("100")) {
		t.Fatalf("expected clamp to 100, got %s", got)
	}
	if got := TierProgress(d("-5"), tier); !got.IsZero() {
		t.Fatalf("expected clamp to 0, got %s", got)
	}
}

func TestRemoveTierScenarioE(t *testing.T) {
	cfg := Config{BaseCommissionPercent: d("1"), Tiers: tiers("100", "200")}
	got, err := cfg.RemoveTier(0)
	if !errors.Is(err, ErrInsufficientTierConfig) {
		t.Fatalf("expected ErrInsufficientTierConfig, got %v", err)
	}
	if len(got.Tiers) != 1 || len(cfg.Tiers) != 1 || !cfg.Tiers[0].Bonus.Equal(d("200")) {
		t.Fatalf("config must be unchanged, got %+v", got)
	}
}

func TestRemoveTierDoesNotAliasOriginal(t *testing.T) {
	cfg := DefaultConfig()
	next, err := cfg.RemoveTier(1)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(next.Tiers) != 3 || len(cfg.Tiers) != 4 {
		t.Fatalf("unexpected lengths %d / %d", len(next.Tiers), len(cfg.Tiers))
	}
	if !cfg.Tiers[1].ThresholdPercent.Equal(d("90")) {
		t.Fatalf("original config was modified: %+v", cfg.Tiers)
	}
	if _, err := cfg.RemoveTier(9); !errors.Is(err, ErrTierNotFound) {
		t.Fatalf("expected ErrTierNotFound, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"default", DefaultConfig(), nil},
		{"percent above 100", Config{BaseCommissionPercent: d("100.01"), Tiers: tiers("80", "1")}, ErrInvalidConfig},
		{"negative percent", Config{BaseCommissionPercent: d("-1"), Tiers: tiers("80", "1")}, ErrInvalidConfig},
		{"no tiers", Config{BaseCommissionPercent: d("1")}, ErrInsufficientTierConfig},
		{"zero threshold", Config{BaseCommissionPercent: d("1"), Tiers: tiers("0", "1")}, ErrInvalidConfig},
		{"negative bonus", Config{BaseCommissionPercent: d("1"), Tiers: tiers("80", "-1")}, ErrInvalidConfig},
		{"repeated threshold", Config{BaseCommissionPercent: d("1"), Tiers: tiers("80", "1", "80", "2")}, nil},
		{"bonus lower at higher threshold", Config{BaseCommissionPercent: d("1"), Tiers: tiers("80", "200", "100", "150")}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAddTierKeepsOrder(t *testing.T) {
	cfg := Config{BaseCommissionPercent: d("1"), Tiers: tiers("100", "200")}
	next, err := cfg.AddTier(Tier{ThresholdPercent: d("80"), Bonus: d("100")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !next.Tiers[0].ThresholdPercent.Equal(d("80")) {
		t.Fatalf("expected tiers sorted ascending, got %+v", next.Tiers)
	}
	if _, err := next.AddTier(Tier{ThresholdPercent: d("0"), Bonus: d("50")}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected zero threshold to be rejected, got %v", err)
	}
}

func TestAddTierAcceptsLowerTopBonus(t *testing.T) {
	next, err := DefaultConfig().AddTier(Tier{ThresholdPercent: d("120"), Bonus: d("250")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	top := next.Tiers[len(next.Tiers)-1]
	if !top.ThresholdPercent.Equal(d("120")) || !top.Bonus.Equal(d("250")) {
		t.Fatalf("expected 120%% tier last, got %+v", next.Tiers)
	}
	// highest reached tier pays, even when a lower tier pays more
	if got := AchievedBonus(d("12000"), d("10000"), next.Tiers); !got.Equal(d("250")) {
		t.Fatalf("expected 250, got %s", got)
	}
}

func TestRepeatedThresholdPaysLargestBonus(t *testing.T) {
	ts := tiers("80", "1", "80", "2")
	if got := AchievedBonus(d("80"), d("100"), ts); !got.Equal(d("2")) {
		t.Fatalf("expected 2, got %s", got)
	}
}

func TestEvaluate(t *testing.T) {
	e := Evaluate(d("9000"), d("10000"), DefaultConfig())
	if !e.AchievedPercent.Equal(d("90")) || !e.BaseCommission.Equal(d("90")) || !e.Bonus.Equal(d("150")) || !e.Total.Equal(d("240")) {
		t.Fatalf("unexpected earnings %+v", e)
	}
	if len(e.Tiers) != 4 || !e.Tiers[0].Achieved || !e.Tiers[1].Achieved || e.Tiers[2].Achieved {
		t.Fatalf("unexpected tier status %+v", e.Tiers)
	}
	if e.NextTier == nil || !e.NextTier.ThresholdPercent.Equal(d("100")) {
		t.Fatalf("expected next tier at 100%%, got %+v", e.NextTier)
	}
	if !e.MissingForNext.Equal(d("1000")) {
		t.Fatalf("expected 1000 missing, got %s", e.MissingForNext)
	}

	top := Evaluate(d("20000"), d("10000"), DefaultConfig())
	if top.NextTier != nil || !top.Bonus.Equal(d("300")) {
		t.Fatalf("expected top tier without next, got %+v", top)
	}
}
