package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/cache"
	"github.com/noah-isme/backend-pdv/internal/report"
)

type stubQueries struct {
	sellerCalls int
	branchCalls int
}

func (s *stubQueries) SellerPeriod(ctx context.Context, branchID, sellerID string, from, to time.Time) (report.SellerPeriod, error) {
	s.sellerCalls++
	return report.SellerPeriod{SellerID: sellerID, SalesTotal: decimal.NewFromInt(9000), SalesCount: 3}, nil
}

func (s *stubQueries) ByBranch(ctx context.Context, branchID string, from, to time.Time) ([]report.SellerPeriod, error) {
	s.branchCalls++
	return []report.SellerPeriod{{SellerID: "s1"}}, nil
}

func TestSellerPeriodCached(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queries := &stubQueries{}
	svc := &report.Service{Q: queries, Cache: cache.New(rdb, time.Minute)}
	from, to := report.MonthBounds(2026, time.March, time.UTC)

	for i := 0; i < 2; i++ {
		got, err := svc.SellerPeriod(context.Background(), "f1", "s1", from, to)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !got.SalesTotal.Equal(decimal.NewFromInt(9000)) {
			t.Fatalf("unexpected total %s", got.SalesTotal)
		}
	}
	if queries.sellerCalls != 1 {
		t.Fatalf("expected 1 DB call, got %d", queries.sellerCalls)
	}

	// other branches never share cached aggregates
	if _, err := svc.SellerPeriod(context.Background(), "f2", "s1", from, to); err != nil {
		t.Fatalf("other branch: %v", err)
	}
	if queries.sellerCalls != 2 {
		t.Fatalf("expected 2 DB calls, got %d", queries.sellerCalls)
	}
}

func TestByBranchWithoutCache(t *testing.T) {
	queries := &stubQueries{}
	svc := &report.Service{Q: queries}
	from, to := report.MonthBounds(2026, time.March, time.UTC)
	for i := 0; i < 2; i++ {
		if _, err := svc.ByBranch(context.Background(), "f1", from, to); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if queries.branchCalls != 2 {
		t.Fatalf("expected uncached calls, got %d", queries.branchCalls)
	}
}

func TestMonthBounds(t *testing.T) {
	from, to := report.MonthBounds(2026, time.December, time.UTC)
	if from.Day() != 1 || from.Month() != time.December {
		t.Fatalf("unexpected from %v", from)
	}
	if to.Year() != 2027 || to.Month() != time.January {
		t.Fatalf("unexpected to %v", to)
	}
}

func TestInvalidateDropsBranchAggregates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queries := &stubQueries{}
	svc := &report.Service{Q: queries, Cache: cache.New(rdb, time.Hour)}
	from, to := report.MonthBounds(2026, time.March, time.UTC)
	ctx := context.Background()

	for _, branchID := range []string{"f1", "f2"} {
		if _, err := svc.SellerPeriod(ctx, branchID, "s1", from, to); err != nil {
			t.Fatalf("seller period: %v", err)
		}
	}
	if _, err := svc.ByBranch(ctx, "f1", from, to); err != nil {
		t.Fatalf("by branch: %v", err)
	}

	if err := svc.Invalidate(ctx, "f1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, err := svc.SellerPeriod(ctx, "f1", "s1", from, to); err != nil {
		t.Fatalf("seller period: %v", err)
	}
	if _, err := svc.SellerPeriod(ctx, "f2", "s1", from, to); err != nil {
		t.Fatalf("seller period: %v", err)
	}
	if _, err := svc.ByBranch(ctx, "f1", from, to); err != nil {
		t.Fatalf("by branch: %v", err)
	}
	// f1 is read again, f2 still comes from the cache
	if queries.sellerCalls != 3 {
		t.Fatalf("expected 3 seller queries, got %d", queries.sellerCalls)
	}
	if queries.branchCalls != 2 {
		t.Fatalf("expected 2 branch queries, got %d", queries.branchCalls)
	}
}
