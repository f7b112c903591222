// Package cart holds the line items of a till session and the session state
// machine that gates checkout.
package cart

import (
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/pricing"
)

// ManualCode marks catalogue entries sold at a price typed in at the till.
const ManualCode = "0"

var (
	// ErrEmptyCart is returned when an operation requires at least one line.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrForeignBranchProduct is returned when a product belongs to another branch.
	ErrForeignBranchProduct = errors.New("product belongs to another branch")
)

// Product is the catalogue view the cart needs to build a line.
type Product struct {
	ID                string           `json:"id"`
	Code              string           `json:"code"`
	Description       string           `json:"description"`
	UnitPrice         decimal.Decimal  `json:"unitPrice"`
	UnitCost          *decimal.Decimal `json:"unitCost,omitempty"`
	BranchID          string           `json:"branchId"`
	QuantityAvailable int              `json:"quantityAvailable"`
}

// Line is a single product entry. Its subtotal is always derived.
type Line struct {
	ProductID   string           `json:"productId"`
	Code        string           `json:"code"`
	Description string           `json:"description"`
	Quantity    int              `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unitPrice"`
	UnitCost    *decimal.Decimal `json:"unitCost,omitempty"`
	Manual      bool             `json:"manual,omitempty"`
}

// Subtotal returns quantity × unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered list of lines keyed by product id.
type Cart struct {
	Lines []Line `json:"lines"`
}

func (c *Cart) index(productID string) int {
	return slices.IndexFunc(c.Lines, func(l Line) bool { return l.ProductID == productID })
}

// Add increments the quantity of p when already present, otherwise appends a
// line with quantity 1. Manual-price products always get their own line.
func (c *Cart) Add(p Product) Line {
	if p.Code == ManualCode {
		return c.AddManual(p.Description, p.UnitPrice)
	}
	if i := c.index(p.ID); i >= 0 {
		c.Lines[i].Quantity++
		return c.Lines[i]
	}
	line := Line{
		ProductID:   p.ID,
		Code:        p.Code,
		Description: p.Description,
		Quantity:    1,
		UnitPrice:   p.UnitPrice,
		UnitCost:    p.UnitCost,
	}
	c.Lines = append(c.Lines, line)
	return line
}

// AddManual appends a free-price line with a generated id.
func (c *Cart) AddManual(description string, unitPrice decimal.Decimal) Line {
	line := Line{
		ProductID:   "manual-" + uuid.NewString(),
		Code:        ManualCode,
		Description: description,
		Quantity:    1,
		UnitPrice:   unitPrice,
		Manual:      true,
	}
	c.Lines = append(c.Lines, line)
	return line
}

// SetQuantity sets the quantity of a line; n ≤ 0 removes it. Stock is not
// checked here. It reports whether a line was affected.
func (c *Cart) SetQuantity(productID string, n int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	if n <= 0 {
		c.Lines = slices.Delete(c.Lines, i, i+1)
		return true
	}
	c.Lines[i].Quantity = n
	return true
}

// Remove drops the line for productID. Absent ids are ignored.
func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.Lines = slices.Delete(c.Lines, i, i+1)
	}
}

// Items converts the lines into pricing inputs.
func (c *Cart) Items() []pricing.Item {
	items := make([]pricing.Item, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, pricing.Item{Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return items
}

// Subtotal sums every line. It is recomputed on each call.
func (c *Cart) Subtotal() decimal.Decimal {
	return pricing.Subtotal(c.Items())
}

// Len returns the number of lines.
func (c *Cart) Len() int { return len(c.Lines) }

// Pieces returns the total quantity across lines.
func (c *Cart) Pieces() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Snapshot returns a copy of the lines that later mutations cannot affect.
func (c *Cart) Snapshot() []Line {
	return slices.Clone(c.Lines)
}

// Clear empties the cart.
func (c *Cart) Clear() { c.Lines = nil }
