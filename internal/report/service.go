package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-pdv/internal/cache"
)

// Querier defines the aggregate queries the service caches.
type Querier interface {
	SellerPeriod(ctx context.Context, branchID, sellerID string, from, to time.Time) (SellerPeriod, error)
	ByBranch(ctx context.Context, branchID string, from, to time.Time) ([]SellerPeriod, error)
}

// Service provides cached access to the sales aggregates.
type Service struct {
	Q     Querier
	Cache *cache.JSON
	Now   func() time.Time
	// Loc is the business time zone used to cut days and months.
	Loc *time.Location
}

func (s *Service) loc() *time.Location {
	if s != nil && s.Loc != nil {
		return s.Loc
	}
	return time.Local
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case time.Time:
			formatted = append(formatted, v.UTC().Format(time.RFC3339))
		default:
			formatted = append(formatted, fmt.Sprint(v))
		}
	}
	return strings.Join(formatted, ":")
}

// SellerPeriod returns the cached aggregate of one seller.
func (s *Service) SellerPeriod(ctx context.Context, branchID, sellerID string, from, to time.Time) (SellerPeriod, error) {
	if s == nil || s.Q == nil {
		return SellerPeriod{}, errors.New("report service not configured")
	}
	key := cache.BranchKey(branchID, cacheKey("rpt", "seller", sellerID, from, to))
	var cached SellerPeriod
	if ok, _ := s.Cache.Get(ctx, key, &cached); ok {
		return cached, nil
	}
	out, err := s.Q.SellerPeriod(ctx, branchID, sellerID, from, to)
	if err != nil {
		return SellerPeriod{}, err
	}
	_ = s.Cache.Set(ctx, key, out)
	return out, nil
}

// ByBranch returns the cached per-seller aggregates of a branch.
func (s *Service) ByBranch(ctx context.Context, branchID string, from, to time.Time) ([]SellerPeriod, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("report service not configured")
	}
	key := cache.BranchKey(branchID, cacheKey("rpt", "branch", from, to))
	var cached []SellerPeriod
	if ok, _ := s.Cache.Get(ctx, key, &cached); ok {
		return cached, nil
	}
	out, err := s.Q.ByBranch(ctx, branchID, from, to)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.Set(ctx, key, out)
	return out, nil
}

// Invalidate drops every cached aggregate of branchID. Sales and reversals
// call it so performance figures follow the till.
func (s *Service) Invalidate(ctx context.Context, branchID string) error {
	if s == nil {
		return nil
	}
	_, err := s.Cache.DeleteMatching(ctx, cache.BranchKey(branchID, "rpt", "*"))
	return err
}

// MonthBounds returns [first day of month, first day of next month) in loc.
func MonthBounds(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}
