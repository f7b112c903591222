package cart

import (
	"errors"
	"time"
)

// ErrSessionClosed is returned when a submitted session is mutated.
var ErrSessionClosed = errors.New("cart session already submitted")

// State is the checkout session lifecycle stage.
type State string

const (
	StateEmpty     State = "empty"
	StateBuilding  State = "building"
	StateReady     State = "ready"
	StateSubmitted State = "submitted"
)

// Session is a till checkout session owned by one operator.
type Session struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branchId"`
	OwnerID    string    `json:"ownerId"`
	Cart       Cart      `json:"cart"`
	State      State     `json:"state"`
	CustomerID string    `json:"customerId,omitempty"`
	SaleID     string    `json:"saleId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewSession returns an empty session.
func NewSession(id, branchID, ownerID string, now time.Time) Session {
	return Session{
		ID:        id,
		BranchID:  branchID,
		OwnerID:   ownerID,
		State:     StateEmpty,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Mutate applies fn to the cart. Any edit moves a ready session back to
// building, and an emptied cart back to empty.
func (s *Session) Mutate(now time.Time, fn func(*Cart)) error {
	if s.State == StateSubmitted {
		return ErrSessionClosed
	}
	fn(&s.Cart)
	s.settle(now)
	return nil
}

func (s *Session) settle(now time.Time) {
	if s.Cart.Len() == 0 {
		s.State = StateEmpty
	} else {
		s.State = StateBuilding
	}
	s.UpdatedAt = now
}

// MarkReady records that the cart passed checkout validation.
func (s *Session) MarkReady(now time.Time) error {
	switch {
	case s.State == StateSubmitted:
		return ErrSessionClosed
	case s.Cart.Len() == 0:
		return ErrEmptyCart
	}
	s.State = StateReady
	s.UpdatedAt = now
	return nil
}

// MarkSubmitted closes the session for saleID and clears its cart.
func (s *Session) MarkSubmitted(saleID string, now time.Time) error {
	switch {
	case s.State == StateSubmitted:
		return ErrSessionClosed
	case s.Cart.Len() == 0:
		return ErrEmptyCart
	}
	s.State = StateSubmitted
	s.SaleID = saleID
	s.Cart.Clear()
	s.UpdatedAt = now
	return nil
}

// Reset discards every line and the selected customer.
func (s *Session) Reset(now time.Time) error {
	if s.State == StateSubmitted {
		return ErrSessionClosed
	}
	s.Cart.Clear()
	s.CustomerID = ""
	s.settle(now)
	return nil
}
