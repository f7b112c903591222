package commission

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/auth"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/report"
)

var (
	// ErrAdvanceNotFound is returned for an unknown advance or one owned by
	// another branch.
	ErrAdvanceNotFound = errors.New("advance not found")
	// ErrInvalidAdvance is returned when an advance fails validation.
	ErrInvalidAdvance = errors.New("invalid advance")
)

// Advance is money handed to a seller ahead of the monthly payout. It is
// deducted from the payout of the month it is booked against.
type Advance struct {
	ID         string          `json:"id"`
	BranchID   string          `json:"branchId"`
	SellerID   string          `json:"sellerId"`
	SellerName string          `json:"sellerName,omitempty"`
	Year       int             `json:"year"`
	Month      time.Month      `json:"month"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
	CreatedBy  string          `json:"createdBy"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AdvanceStore persists advances.
type AdvanceStore interface {
	InsertAdvance(ctx context.Context, a Advance) error
	// Advances lists the month's advances oldest first. An empty sellerID
	// selects every seller of the branch.
	Advances(ctx context.Context, branchID, sellerID string, year int, month time.Month) ([]Advance, error)
	// UpdateAdvance returns ErrAdvanceNotFound when id is not in branchID.
	UpdateAdvance(ctx context.Context, branchID, id string, amount decimal.Decimal, note string) (Advance, error)
	// DeleteAdvance returns ErrAdvanceNotFound when id is not in branchID.
	DeleteAdvance(ctx context.Context, branchID, id string) error
}

// SellerLookup resolves the seller an advance is booked for.
type SellerLookup interface {
	UserByID(ctx context.Context, id string) (auth.Account, error)
}

// PayoutAdvance is an advance as it appears on a payout.
type PayoutAdvance struct {
	Advance
	Deducted bool `json:"deducted"`
}

// SellerPayout is what a seller is owed for a month.
type SellerPayout struct {
	SellerID        string          `json:"sellerId"`
	SellerName      string          `json:"sellerName,omitempty"`
	SalesCount      int             `json:"salesCount"`
	SalesTotal      decimal.Decimal `json:"salesTotal"`
	Goal            decimal.Decimal `json:"goal"`
	AchievedPercent decimal.Decimal `json:"achievedPercent"`
	BaseCommission  decimal.Decimal `json:"baseCommission"`
	Bonus           decimal.Decimal `json:"bonus"`
	Advances        []PayoutAdvance `json:"advances"`
	Deducted        decimal.Decimal `json:"deducted"`
	Due             decimal.Decimal `json:"due"`
}

// BranchPayout is the month's payroll of a branch.
type BranchPayout struct {
	Year     int             `json:"year"`
	Month    time.Month      `json:"month"`
	Sellers  []SellerPayout  `json:"sellers"`
	Earned   decimal.Decimal `json:"earned"`
	Deducted decimal.Decimal `json:"deducted"`
	Due      decimal.Decimal `json:"due"`
}

// Payout settles earnings against advances. Every advance is deducted unless
// its id is in keep. Due may go negative when advances exceed earnings.
func Payout(e Earnings, advances []Advance, keep map[string]bool) SellerPayout {
	out := SellerPayout{
		SalesTotal:      e.SalesTotal,
		Goal:            e.Goal,
		AchievedPercent: e.AchievedPercent,
		BaseCommission:  e.BaseCommission,
		Bonus:           e.Bonus,
		Advances:        make([]PayoutAdvance, 0, len(advances)),
		Deducted:        decimal.Zero,
	}
	for _, a := range advances {
		deduct := !keep[a.ID]
		if deduct {
			out.Deducted = out.Deducted.Add(a.Amount)
		}
		out.Advances = append(out.Advances, PayoutAdvance{Advance: a, Deducted: deduct})
	}
	out.Due = e.BaseCommission.Add(e.Bonus).Sub(out.Deducted).Round(2)
	return out
}

func (s *Service) checkSeller(ctx context.Context, branchID, sellerID string) (string, error) {
	if s.Sellers == nil {
		return "", errors.New("commission service has no seller lookup")
	}
	acct, err := s.Sellers.UserByID(ctx, sellerID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return "", fmt.Errorf("%w: unknown seller", ErrInvalidAdvance)
	}
	if err != nil {
		return "", fmt.Errorf("load seller: %w", err)
	}
	if acct.Role != common.RoleSeller || acct.BranchID != branchID || !acct.Active {
		return "", fmt.Errorf("%w: not an active seller of this branch", ErrInvalidAdvance)
	}
	return acct.Name, nil
}

// RecordAdvance books a new advance against a seller of a.BranchID.
func (s *Service) RecordAdvance(ctx context.Context, a Advance) (Advance, error) {
	if s == nil || s.Advances == nil {
		return Advance{}, errors.New("commission service not configured")
	}
	if !a.Amount.IsPositive() {
		return Advance{}, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAdvance)
	}
	if a.Month < time.January || a.Month > time.December || a.Year < 2000 {
		return Advance{}, fmt.Errorf("%w: month and year out of range", ErrInvalidAdvance)
	}
	name, err := s.checkSeller(ctx, a.BranchID, a.SellerID)
	if err != nil {
		return Advance{}, err
	}
	a.ID = uuid.NewString()
	a.SellerName = name
	a.Amount = a.Amount.Round(2)
	a.Note = strings.TrimSpace(a.Note)
	a.CreatedAt = s.now().UTC()
	if err := s.Advances.InsertAdvance(ctx, a); err != nil {
		return Advance{}, fmt.Errorf("record advance: %w", err)
	}
	return a, nil
}

// ListAdvances lists the month's advances of a branch, optionally one
// seller's. A zero year or month selects the current one.
func (s *Service) ListAdvances(ctx context.Context, branchID, sellerID string, year int, month time.Month) ([]Advance, error) {
	if s == nil || s.Advances == nil {
		return nil, errors.New("commission service not configured")
	}
	year, month = s.month(year, month)
	out, err := s.Advances.Advances(ctx, branchID, sellerID, year, month)
	if err != nil {
		return nil, fmt.Errorf("list advances: %w", err)
	}
	return out, nil
}

// UpdateAdvance corrects the amount and note of an advance.
func (s *Service) UpdateAdvance(ctx context.Context, branchID, id string, amount decimal.Decimal, note string) (Advance, error) {
	if s == nil || s.Advances == nil {
		return Advance{}, errors.New("commission service not configured")
	}
	if !amount.IsPositive() {
		return Advance{}, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAdvance)
	}
	return s.Advances.UpdateAdvance(ctx, branchID, id, amount.Round(2), strings.TrimSpace(note))
}

// DeleteAdvance removes an advance of branchID.
func (s *Service) DeleteAdvance(ctx context.Context, branchID, id string) error {
	if s == nil || s.Advances == nil {
		return errors.New("commission service not configured")
	}
	return s.Advances.DeleteAdvance(ctx, branchID, id)
}

func (s *Service) month(year int, month time.Month) (int, time.Month) {
	if year == 0 || month == 0 {
		now := s.now().In(s.loc())
		return now.Year(), now.Month()
	}
	return year, month
}

// BranchPayout builds the month's payroll: base commission plus bonus of
// every seller with sales or advances, minus the advances not listed in keep.
func (s *Service) BranchPayout(ctx context.Context, branchID string, year int, month time.Month, keep []string) (BranchPayout, error) {
	if s == nil || s.Goals == nil || s.Sales == nil || s.Advances == nil {
		return BranchPayout{}, errors.New("commission service not configured")
	}
	year, month = s.month(year, month)
	cfg, err := s.Config(ctx, branchID)
	if err != nil {
		return BranchPayout{}, err
	}
	from, to := report.MonthBounds(year, month, s.loc())
	sales, err := s.Sales.ByBranch(ctx, branchID, from, to)
	if err != nil {
		return BranchPayout{}, fmt.Errorf("load sales: %w", err)
	}
	advances, err := s.Advances.Advances(ctx, branchID, "", year, month)
	if err != nil {
		return BranchPayout{}, fmt.Errorf("load advances: %w", err)
	}

	periods := slices.Clone(sales)
	listed := make(map[string]bool, len(periods))
	for _, p := range periods {
		listed[p.SellerID] = true
	}
	bySeller := make(map[string][]Advance)
	for _, a := range advances {
		if !listed[a.SellerID] {
			listed[a.SellerID] = true
			periods = append(periods, report.SellerPeriod{SellerID: a.SellerID, SellerName: a.SellerName, SalesTotal: decimal.Zero})
		}
		bySeller[a.SellerID] = append(bySeller[a.SellerID], a)
	}
	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}

	out := BranchPayout{
		Year:     year,
		Month:    month,
		Sellers:  make([]SellerPayout, 0, len(periods)),
		Earned:   decimal.Zero,
		Deducted: decimal.Zero,
		Due:      decimal.Zero,
	}
	for _, p := range periods {
		goal, err := s.Goals.Goal(ctx, branchID, p.SellerID, year, month)
		if err != nil {
			return BranchPayout{}, fmt.Errorf("load goal: %w", err)
		}
		sp := Payout(Evaluate(p.SalesTotal, goal.Target, cfg), bySeller[p.SellerID], kept)
		sp.SellerID = p.SellerID
		sp.SellerName = p.SellerName
		sp.SalesCount = p.SalesCount
		out.Sellers = append(out.Sellers, sp)
		out.Earned = out.Earned.Add(sp.BaseCommission).Add(sp.Bonus)
		out.Deducted = out.Deducted.Add(sp.Deducted)
		out.Due = out.Due.Add(sp.Due)
	}
	return out, nil
}
