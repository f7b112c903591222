package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest difference accepted when two monetary amounts are reconciled.
var Tolerance = decimal.New(1, -2)

// ErrNegativeAmount is returned when a discount or credit amount is below zero.
var ErrNegativeAmount = errors.New("amount must not be negative")

// ErrInvalidInstallments is returned when an installment count is below one.
var ErrInvalidInstallments = errors.New("installments must be at least 1")

// Item describes a line item used for pricing calculation.
type Item struct {
	Quantity  int
	UnitPrice decimal.Decimal
}

// Adjustments groups the flat amounts deducted from a subtotal.
type Adjustments struct {
	Discount    decimal.Decimal
	StoreCredit decimal.Decimal
}

// Validate rejects negative adjustments.
func (a Adjustments) Validate() error {
	if a.Discount.IsNegative() {
		return fmt.Errorf("discount: %w", ErrNegativeAmount)
	}
	if a.StoreCredit.IsNegative() {
		return fmt.Errorf("store credit: %w", ErrNegativeAmount)
	}
	return nil
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	StoreCredit decimal.Decimal `json:"storeCredit"`
	Total       decimal.Decimal `json:"total"`
}

// Subtotal sums quantity × unit price across items. Items with a non-positive
// quantity contribute nothing.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Total returns subtotal − discount − credit floored at zero.
func Total(subtotal, discount, credit decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount).Sub(credit)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// MaxUsableCredit bounds the credit a customer may spend by both the balance and the amount owed.
func MaxUsableCredit(available, total decimal.Decimal) decimal.Decimal {
	limit := decimal.Min(available, total)
	if limit.IsNegative() {
		return decimal.Zero
	}
	return limit
}

// Compute calculates the payable summary for the provided items and adjustments.
func Compute(items []Item, adj Adjustments) Summary {
	subtotal := Subtotal(items)
	return Summary{
		Subtotal:    subtotal,
		Discount:    adj.Discount,
		StoreCredit: adj.StoreCredit,
		Total:       Total(subtotal, adj.Discount, adj.StoreCredit),
	}
}

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Round rounds to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// InstallmentPreview returns the per-installment amount shown at the till.
func InstallmentPreview(total decimal.Decimal, n int) (decimal.Decimal, error) {
	if n < 1 {
		return decimal.Zero, ErrInvalidInstallments
	}
	return total.DivRound(decimal.NewFromInt(int64(n)), 2), nil
}

// Format renders d as a fixed two-decimal string.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
