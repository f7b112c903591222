// Package drawer totals a day's takings per payment method and reconciles the
// cash drawer against what the operator counted.
package drawer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/payment"
	"github.com/noah-isme/backend-pdv/internal/pricing"
)

// ErrInvalidMovement is returned for unknown kinds or non-positive amounts.
var ErrInvalidMovement = errors.New("invalid drawer movement")

// MovementKind classifies cash put into or taken out of the drawer.
type MovementKind string

const (
	// KindOpening is the float the drawer starts the day with.
	KindOpening MovementKind = "abertura"
	// KindWithdrawal is cash taken out, usually handed to management.
	KindWithdrawal MovementKind = "sangria"
	// KindTopUp is cash added during the day.
	KindTopUp MovementKind = "suprimento"
)

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	return k == KindOpening || k == KindWithdrawal || k == KindTopUp
}

// Movement is a manual cash entry. Amount is always positive.
type Movement struct {
	ID        string          `json:"id"`
	BranchID  string          `json:"branchId"`
	Kind      MovementKind    `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Validate rejects unknown kinds and non-positive amounts.
func (m Movement) Validate() error {
	if !m.Kind.Valid() {
		return ErrInvalidMovement
	}
	if !m.Amount.IsPositive() {
		return ErrInvalidMovement
	}
	return nil
}

// Signed is the effect of m on the cash in the drawer.
func (m Movement) Signed() decimal.Decimal {
	if m.Kind == KindWithdrawal {
		return m.Amount.Neg()
	}
	return m.Amount
}

// SaleEntry is the part of a sale the closing needs.
type SaleEntry struct {
	ID       string          `json:"id"`
	SellerID string          `json:"sellerId"`
	Total    decimal.Decimal `json:"total"`
	Payments []payment.Line  `json:"payments"`
	Reversed bool            `json:"reversed"`
}

// MethodTotal is the takings of one method.
type MethodTotal struct {
	Method payment.Method `json:"method"`
	Label  string         `json:"label"`
	Amount string         `json:"amount"`
}

// Summary is the closing of a set of sales.
type Summary struct {
	ByMethod      map[payment.Method]decimal.Decimal `json:"-"`
	TotalGeneral  decimal.Decimal                    `json:"totalGeneral"`
	SalesCount    int                                `json:"salesCount"`
	ReversedCount int                                `json:"reversedCount"`
}

// Amount returns the total taken with m.
func (s Summary) Amount(m payment.Method) decimal.Decimal {
	return s.ByMethod[m]
}

// Totals lists every method in display order, including empty ones.
func (s Summary) Totals() []MethodTotal {
	out := make([]MethodTotal, 0, len(payment.Methods()))
	for _, m := range payment.Methods() {
		out = append(out, MethodTotal{Method: m, Label: m.Label(), Amount: pricing.Format(s.Amount(m))})
	}
	return out
}

// Summarize totals sales per method. Reversed sales are counted apart and
// contribute nothing; a mixed sale adds each payment line to its method.
func Summarize(sales []SaleEntry) Summary {
	out := Summary{ByMethod: make(map[payment.Method]decimal.Decimal, len(payment.Methods()))}
	for _, m := range payment.Methods() {
		out.ByMethod[m] = decimal.Zero
	}
	for _, s := range sales {
		if s.Reversed {
			out.ReversedCount++
			continue
		}
		out.SalesCount++
		out.TotalGeneral = out.TotalGeneral.Add(s.Total)
		for _, l := range s.Payments {
			out.ByMethod[l.Method] = out.ByMethod[l.Method].Add(l.Amount)
		}
	}
	return out
}

// OpeningFloat sums the opening movements.
func OpeningFloat(movements []Movement) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range movements {
		if m.Kind == KindOpening {
			sum = sum.Add(m.Amount)
		}
	}
	return sum
}

// Reconciliation compares the expected cash with the counted cash.
type Reconciliation struct {
	OpeningFloat decimal.Decimal `json:"openingFloat"`
	CashSales    decimal.Decimal `json:"cashSales"`
	Movements    decimal.Decimal `json:"movements"`
	Expected     decimal.Decimal `json:"expected"`
	Declared     decimal.Decimal `json:"declared"`
	Deviation    decimal.Decimal `json:"deviation"`
	Balanced     bool            `json:"balanced"`
}

// Reconcile computes expected = opening + cash sales + Σ movements, where
// withdrawals count negative and opening entries are already in opening.
// Deviation is declared − expected; within a cent the drawer is balanced.
func Reconcile(openingFloat, cashSales decimal.Decimal, movements []Movement, declared decimal.Decimal) Reconciliation {
	net := decimal.Zero
	for _, m := range movements {
		if m.Kind == KindOpening {
			continue
		}
		net = net.Add(m.Signed())
	}
	expected := openingFloat.Add(cashSales).Add(net)
	deviation := declared.Sub(expected)
	return Reconciliation{
		OpeningFloat: openingFloat,
		CashSales:    cashSales,
		Movements:    net,
		Expected:     expected,
		Declared:     declared,
		Deviation:    deviation,
		Balanced:     pricing.WithinTolerance(declared, expected),
	}
}
