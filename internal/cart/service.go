package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/lock"
)

var (
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProductNotFound is returned by lookups for unknown product codes.
	ErrProductNotFound = errors.New("product not found")
	// ErrForbidden is returned when an operator touches someone else's cart.
	ErrForbidden = errors.New("cart belongs to another operator")
)

// SessionStore persists checkout sessions.
type SessionStore interface {
	Load(ctx context.Context, branchID, id string) (Session, error)
	Save(ctx context.Context, sess Session) error
}

// ProductLookup resolves a product by its till code.
type ProductLookup interface {
	ProductByCode(ctx context.Context, branchID, code string) (Product, error)
}

// Locker serialises concurrent edits of one session.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service encapsulates cart session operations.
type Service struct {
	Store    SessionStore
	Products ProductLookup
	Locker   Locker
	LockTTL  time.Duration
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Open starts an empty session for the principal.
func (s *Service) Open(ctx context.Context, p common.Principal, branchID string) (Session, error) {
	if err := s.ready(); err != nil {
		return Session{}, err
	}
	sess := NewSession(uuid.NewString(), branchID, p.UserID, s.now())
	if err := s.Store.Save(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Get returns a session the principal may access.
func (s *Service) Get(ctx context.Context, p common.Principal, branchID, id string) (Session, error) {
	if err := s.ready(); err != nil {
		return Session{}, err
	}
	sess, err := s.Store.Load(ctx, branchID, id)
	if err != nil {
		return Session{}, err
	}
	if err := authorize(sess, p); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Update loads the session under its lock, applies fn and saves the result.
// Nothing is saved when fn fails, so a rejected operation leaves the session
// untouched.
func (s *Service) Update(ctx context.Context, p common.Principal, branchID, id string, fn func(*Session) error) (Session, error) {
	if err := s.ready(); err != nil {
		return Session{}, err
	}
	var out Session
	run := func(ctx context.Context) error {
		sess, err := s.Store.Load(ctx, branchID, id)
		if err != nil {
			return err
		}
		if err := authorize(sess, p); err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		if err := s.Store.Save(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	}
	if s.Locker == nil {
		return out, run(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	err := s.Locker.WithLock(ctx, lock.CartKey(branchID, id), ttl, run)
	return out, err
}

// AddByCode looks up code in the branch catalogue and adds it to the cart.
func (s *Service) AddByCode(ctx context.Context, p common.Principal, branchID, id, code string) (Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Session{}, fmt.Errorf("code is required: %w", ErrInvalidInput)
	}
	if s == nil || s.Products == nil {
		return Session{}, errors.New("product lookup not configured")
	}
	product, err := s.Products.ProductByCode(ctx, branchID, code)
	if err != nil {
		return Session{}, err
	}
	if product.BranchID != "" && product.BranchID != branchID {
		return Session{}, ErrForeignBranchProduct
	}
	return s.Update(ctx, p, branchID, id, func(sess *Session) error {
		return sess.Mutate(s.now(), func(c *Cart) { c.Add(product) })
	})
}

// AddManual adds a free-price line.
func (s *Service) AddManual(ctx context.Context, p common.Principal, branchID, id, description string, unitPrice decimal.Decimal) (Session, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Session{}, fmt.Errorf("description is required: %w", ErrInvalidInput)
	}
	if unitPrice.IsNegative() {
		return Session{}, fmt.Errorf("unit price must not be negative: %w", ErrInvalidInput)
	}
	return s.Update(ctx, p, branchID, id, func(sess *Session) error {
		return sess.Mutate(s.now(), func(c *Cart) { c.AddManual(description, unitPrice) })
	})
}

// SetQuantity changes a line quantity; n ≤ 0 removes the line.
func (s *Service) SetQuantity(ctx context.Context, p common.Principal, branchID, id, productID string, n int) (Session, error) {
	return s.Update(ctx, p, branchID, id, func(sess *Session) error {
		return sess.Mutate(s.now(), func(c *Cart) { c.SetQuantity(productID, n) })
	})
}

// Remove drops a line from the cart.
func (s *Service) Remove(ctx context.Context, p common.Principal, branchID, id, productID string) (Session, error) {
	return s.Update(ctx, p, branchID, id, func(sess *Session) error {
		return sess.Mutate(s.now(), func(c *Cart) { c.Remove(productID) })
	})
}

// Reset empties the cart and forgets the selected customer.
func (s *Service) Reset(ctx context.Context, p common.Principal, branchID, id string) (Session, error) {
	return s.Update(ctx, p, branchID, id, func(sess *Session) error {
		return sess.Reset(s.now())
	})
}

func authorize(sess Session, p common.Principal) error {
	if sess.OwnerID == p.UserID || p.Role.Supervises() {
		return nil
	}
	return ErrForbidden
}
