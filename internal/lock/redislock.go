// Package lock serialises balance and cart mutations across API and worker
// processes with a single-key Redis lease.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pdv/internal/branch"
)

// ErrNotAcquired is returned when the key stays held past WaitTimeout.
var ErrNotAcquired = errors.New("lock: not acquired")

const (
	defaultLease = 30 * time.Second
	defaultPoll  = 50 * time.Millisecond
)

// unlock deletes the key only while it still carries the caller's token, so an
// expired lease taken over by another holder is left alone.
var unlock = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// CustomerKey guards a customer's credit and debt balances.
func CustomerKey(branchID, customerID string) string {
	return branch.PrefixKey(branchID, "lock:customer:"+customerID)
}

// CartKey guards one cart session.
func CartKey(branchID, cartID string) string {
	return branch.PrefixKey(branchID, "lock:cart:"+cartID)
}

// Locker takes leases with SET NX PX and polls while the key is held.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	// WaitTimeout bounds polling on a held key. Zero waits until ctx is done.
	WaitTimeout time.Duration
}

// WithLock runs fn while holding key for at most ttl. The lease is released
// when fn returns, error or not.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	switch {
	case l.R == nil:
		return errors.New("lock: redis client not configured")
	case fn == nil:
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultLease
	}
	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// ctx may already be cancelled; the lease must still go.
		_ = unlock.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	poll := l.RetryBackoff
	if poll <= 0 {
		poll = defaultPoll
	}
	var giveUp <-chan time.Time
	if l.WaitTimeout > 0 {
		t := time.NewTimer(l.WaitTimeout)
		defer t.Stop()
		giveUp = t.C
	}
	token := uuid.NewString()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-giveUp:
			return "", ErrNotAcquired
		case <-ticker.C:
		}
	}
}
