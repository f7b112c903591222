package drawer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/payment"
)

// Store reads a day of sales and movements and keeps closings.
type Store interface {
	SalesBetween(ctx context.Context, branchID, sellerID string, from, to time.Time) ([]SaleEntry, error)
	MovementsBetween(ctx context.Context, branchID string, from, to time.Time) ([]Movement, error)
	InsertMovement(ctx context.Context, m Movement) error
	SaveClosing(ctx context.Context, c Closing) error
}

// Closing is the drawer state of one branch day, optionally for one seller.
type Closing struct {
	ID             string          `json:"id,omitempty"`
	BranchID       string          `json:"branchId"`
	SellerID       string          `json:"sellerId,omitempty"`
	Date           string          `json:"date"`
	Summary        Summary         `json:"summary"`
	Totals         []MethodTotal   `json:"totals"`
	Movements      []Movement      `json:"movements"`
	Reconciliation *Reconciliation `json:"reconciliation,omitempty"`
	ClosedBy       string          `json:"closedBy,omitempty"`
	Note           string          `json:"note,omitempty"`
	ClosedAt       *time.Time      `json:"closedAt,omitempty"`
}

// Service assembles closings.
type Service struct {
	Store Store
	Loc   *time.Location
	Now   func() time.Time
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

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("drawer service not configured")
	}
	return nil
}

func dayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.In(loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}

// Closing totals the day containing day.
func (s *Service) Closing(ctx context.Context, branchID, sellerID string, day time.Time) (Closing, error) {
	if err := s.ready(); err != nil {
		return Closing{}, err
	}
	from, to := dayBounds(day, s.loc())
	sales, err := s.Store.SalesBetween(ctx, branchID, sellerID, from, to)
	if err != nil {
		return Closing{}, err
	}
	movements, err := s.Store.MovementsBetween(ctx, branchID, from, to)
	if err != nil {
		return Closing{}, err
	}
	summary := Summarize(sales)
	return Closing{
		BranchID:  branchID,
		SellerID:  sellerID,
		Date:      from.Format("2006-01-02"),
		Summary:   summary,
		Totals:    summary.Totals(),
		Movements: movements,
	}, nil
}

// Close reconciles the day against the declared cash and stores the closing.
func (s *Service) Close(ctx context.Context, p common.Principal, branchID, sellerID string, day time.Time, declared decimal.Decimal, note string) (Closing, error) {
	if declared.IsNegative() {
		return Closing{}, common.ValidationError("declared cash must not be negative", nil)
	}
	c, err := s.Closing(ctx, branchID, sellerID, day)
	if err != nil {
		return Closing{}, err
	}
	rec := Reconcile(OpeningFloat(c.Movements), c.Summary.Amount(payment.MethodCash), c.Movements, declared)
	now := s.now()
	c.ID = uuid.NewString()
	c.Reconciliation = &rec
	c.ClosedBy = p.UserID
	c.Note = strings.TrimSpace(note)
	c.ClosedAt = &now
	if err := s.Store.SaveClosing(ctx, c); err != nil {
		return Closing{}, err
	}
	return c, nil
}

// AddMovement records cash put into or taken from the drawer.
func (s *Service) AddMovement(ctx context.Context, p common.Principal, branchID string, kind MovementKind, amount decimal.Decimal, note string) (Movement, error) {
	if err := s.ready(); err != nil {
		return Movement{}, err
	}
	m := Movement{
		ID:        uuid.NewString(),
		BranchID:  branchID,
		Kind:      kind,
		Amount:    amount,
		Note:      strings.TrimSpace(note),
		CreatedBy: p.UserID,
		CreatedAt: s.now(),
	}
	if err := m.Validate(); err != nil {
		return Movement{}, err
	}
	if err := s.Store.InsertMovement(ctx, m); err != nil {
		return Movement{}, err
	}
	return m, nil
}
