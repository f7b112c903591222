package customer

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/backend-pdv/internal/lock"
	"github.com/noah-isme/backend-pdv/internal/resilience"
)

// Locker serialises writes to one customer's balance.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Ledger applies credit adjustments one customer at a time. The breaker stops
// hammering the database while it is failing; callers keep the adjustment
// pending and retry later.
type Ledger struct {
	Store   Store
	Locker  Locker
	Breaker *resilience.Breaker
	LockTTL time.Duration
}

func (l *Ledger) lockTTL() time.Duration {
	if l.LockTTL <= 0 {
		return 10 * time.Second
	}
	return l.LockTTL
}

// Apply settles adj. ErrCreditBalanceExceeded is terminal; any other error is
// transient.
func (l *Ledger) Apply(ctx context.Context, adj Adjustment) error {
	if l == nil || l.Store == nil {
		return errors.New("customer ledger not configured")
	}
	if adj.ID == "" || adj.CustomerID == "" {
		return errors.New("adjustment id and customer are required")
	}
	apply := func(ctx context.Context) error {
		_, err := l.Store.ApplyCreditAdjustment(ctx, adj.ID)
		return err
	}
	guarded := func(ctx context.Context) error {
		if l.Locker == nil {
			return apply(ctx)
		}
		return l.Locker.WithLock(ctx, lock.CustomerKey(adj.BranchID, adj.CustomerID), l.lockTTL(), apply)
	}
	return l.Breaker.Do(ctx, guarded, func(err error) bool {
		return errors.Is(err, ErrCreditBalanceExceeded)
	})
}
