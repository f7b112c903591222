package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/cache"
	"github.com/noah-isme/backend-pdv/internal/report"
)

// ErrInvalidGoal is returned for a goal outside the calendar or below zero.
var ErrInvalidGoal = errors.New("invalid goal")

// ConfigStore persists one commission config per branch.
type ConfigStore interface {
	// CommissionConfig reports false when the branch never saved a config.
	CommissionConfig(ctx context.Context, branchID string) (Config, bool, error)
	SaveCommissionConfig(ctx context.Context, branchID string, cfg Config) error
}

// Goal is the monthly sales target of a seller.
type Goal struct {
	BranchID     string          `json:"branchId"`
	SellerID     string          `json:"sellerId"`
	Year         int             `json:"year"`
	Month        time.Month      `json:"month"`
	Target       decimal.Decimal `json:"target"`
	PiecesTarget int             `json:"piecesTarget"`
}

// GoalStore persists monthly goals.
type GoalStore interface {
	// Goal returns a zero target when none was set.
	Goal(ctx context.Context, branchID, sellerID string, year int, month time.Month) (Goal, error)
	UpsertGoal(ctx context.Context, g Goal) error
}

// SalesAggregator supplies period sales totals.
type SalesAggregator interface {
	SellerPeriod(ctx context.Context, branchID, sellerID string, from, to time.Time) (report.SellerPeriod, error)
	ByBranch(ctx context.Context, branchID string, from, to time.Time) ([]report.SellerPeriod, error)
}

// Performance is a seller's month with the resulting earnings.
type Performance struct {
	SellerID     string     `json:"sellerId"`
	Year         int        `json:"year"`
	Month        time.Month `json:"month"`
	SalesCount   int        `json:"salesCount"`
	PiecesCount  int        `json:"piecesCount"`
	PiecesTarget int        `json:"piecesTarget"`
	Earnings     Earnings   `json:"earnings"`
}

// Service reads and writes commission policies and evaluates performance.
type Service struct {
	Configs ConfigStore
	Goals   GoalStore
	Sales   SalesAggregator
	// Advances and Sellers back the advance bookings and the payroll.
	Advances AdvanceStore
	Sellers  SellerLookup
	Cache    *cache.JSON
	Loc      *time.Location
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) loc() *time.Location {
	if s != nil && s.Loc != nil {
		return s.Loc
	}
	return time.Local
}

func configKey(branchID string) string {
	return cache.BranchKey(branchID, "commission", "config")
}

// Config returns the branch policy, falling back to DefaultConfig.
func (s *Service) Config(ctx context.Context, branchID string) (Config, error) {
	if s == nil || s.Configs == nil {
		return Config{}, errors.New("commission service not configured")
	}
	var cached Config
	if ok, _ := s.Cache.Get(ctx, configKey(branchID), &cached); ok {
		return cached, nil
	}
	cfg, found, err := s.Configs.CommissionConfig(ctx, branchID)
	if err != nil {
		return Config{}, fmt.Errorf("load commission config: %w", err)
	}
	if !found {
		cfg = DefaultConfig()
	}
	cfg = cfg.Normalised()
	_ = s.Cache.Set(ctx, configKey(branchID), cfg)
	return cfg, nil
}

// SaveConfig validates and stores cfg with tiers sorted by threshold.
func (s *Service) SaveConfig(ctx context.Context, branchID string, cfg Config) (Config, error) {
	if s == nil || s.Configs == nil {
		return Config{}, errors.New("commission service not configured")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg = cfg.Normalised()
	if err := s.Configs.SaveCommissionConfig(ctx, branchID, cfg); err != nil {
		return Config{}, fmt.Errorf("save commission config: %w", err)
	}
	_ = s.Cache.Delete(ctx, configKey(branchID))
	return cfg, nil
}

// AddTier appends a tier to the branch policy.
func (s *Service) AddTier(ctx context.Context, branchID string, t Tier) (Config, error) {
	current, err := s.Config(ctx, branchID)
	if err != nil {
		return Config{}, err
	}
	next, err := current.AddTier(t)
	if err != nil {
		return current, err
	}
	return s.SaveConfig(ctx, branchID, next)
}

// RemoveTier deletes the tier at index (in ascending threshold order).
func (s *Service) RemoveTier(ctx context.Context, branchID string, index int) (Config, error) {
	current, err := s.Config(ctx, branchID)
	if err != nil {
		return Config{}, err
	}
	next, err := current.RemoveTier(index)
	if err != nil {
		return current, err
	}
	return s.SaveConfig(ctx, branchID, next)
}

// SetGoal stores a seller's monthly target.
func (s *Service) SetGoal(ctx context.Context, g Goal) error {
	if s == nil || s.Goals == nil {
		return errors.New("commission service not configured")
	}
	if g.Month < time.January || g.Month > time.December || g.Year < 2000 {
		return fmt.Errorf("%w: month and year out of range", ErrInvalidGoal)
	}
	if g.Target.IsNegative() || g.PiecesTarget < 0 {
		return fmt.Errorf("%w: targets must not be negative", ErrInvalidGoal)
	}
	return s.Goals.UpsertGoal(ctx, g)
}

// Performance evaluates sellerID in the given month. A zero year or month
// selects the current one.
func (s *Service) Performance(ctx context.Context, branchID, sellerID string, year int, month time.Month) (Performance, error) {
	if s == nil || s.Goals == nil || s.Sales == nil {
		return Performance{}, errors.New("commission service not configured")
	}
	year, month = s.month(year, month)
	cfg, err := s.Config(ctx, branchID)
	if err != nil {
		return Performance{}, err
	}
	goal, err := s.Goals.Goal(ctx, branchID, sellerID, year, month)
	if err != nil {
		return Performance{}, fmt.Errorf("load goal: %w", err)
	}
	from, to := report.MonthBounds(year, month, s.loc())
	sales, err := s.Sales.SellerPeriod(ctx, branchID, sellerID, from, to)
	if err != nil {
		return Performance{}, fmt.Errorf("load sales: %w", err)
	}
	return Performance{
		SellerID:     sellerID,
		Year:         year,
		Month:        month,
		SalesCount:   sales.SalesCount,
		PiecesCount:  sales.PiecesCount,
		PiecesTarget: goal.PiecesTarget,
		Earnings:     Evaluate(sales.SalesTotal, goal.Target, cfg),
	}, nil
}
