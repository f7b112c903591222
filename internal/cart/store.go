package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pdv/internal/branch"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart not found")

// RedisStore keeps sessions as JSON documents that expire after TTL of inactivity.
type RedisStore struct {
	R   *redis.Client
	TTL time.Duration
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 12 * time.Hour
	}
	return s.TTL
}

func sessionKey(branchID, id string) string {
	return branch.PrefixKey(branchID, "cart:"+id)
}

// Load returns the session stored under branchID and id.
func (s RedisStore) Load(ctx context.Context, branchID, id string) (Session, error) {
	if s.R == nil {
		return Session{}, errors.New("cart store not configured")
	}
	raw, err := s.R.Get(ctx, sessionKey(branchID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("load cart: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode cart: %w", err)
	}
	return sess, nil
}

// Save persists the session and refreshes its expiry.
func (s RedisStore) Save(ctx context.Context, sess Session) error {
	if s.R == nil {
		return errors.New("cart store not configured")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return s.R.Set(ctx, sessionKey(sess.BranchID, sess.ID), raw, s.ttl()).Err()
}
