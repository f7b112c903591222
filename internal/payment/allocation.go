package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/pricing"
)

// ErrPaymentMismatch is returned when mixed payment lines do not add up to the sale total.
var ErrPaymentMismatch = errors.New("payment lines do not match total")

// ErrInvalidAllocation is returned for structurally invalid allocations.
var ErrInvalidAllocation = errors.New("invalid payment allocation")

// Mode distinguishes single-instrument from split payments.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMixed  Mode = "mixed"
)

// Line is one instrument's share of a sale.
type Line struct {
	Method       Method          `json:"method"`
	Amount       decimal.Decimal `json:"amount"`
	Installments int             `json:"installments"`
}

// Allocation is either Single or Mixed. The unexported marker keeps the set closed.
type Allocation interface {
	Mode() Mode
	allocation()
}

// Single settles the whole total with one method.
type Single struct {
	Method       Method
	Installments int
}

// Mixed splits the total across several lines.
type Mixed struct {
	Lines []Line
}

func (Single) Mode() Mode  { return ModeSingle }
func (Mixed) Mode() Mode   { return ModeMixed }
func (Single) allocation() {}
func (Mixed) allocation()  {}

// MismatchError carries the figures behind ErrPaymentMismatch.
type MismatchError struct {
	Sum   decimal.Decimal
	Total decimal.Decimal
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: paid %s, total %s", ErrPaymentMismatch, e.Sum.StringFixed(2), e.Total.StringFixed(2))
}

func (e *MismatchError) Is(target error) bool { return target == ErrPaymentMismatch }

// Difference is total − sum; positive means money is still missing.
func (e *MismatchError) Difference() decimal.Decimal { return e.Total.Sub(e.Sum) }

// Sum adds the amounts of the provided lines.
func Sum(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Amount)
	}
	return sum
}

// ValidateMixed succeeds iff |Σ amount − total| ≤ pricing.Tolerance. Line order is irrelevant.
func ValidateMixed(lines []Line, total decimal.Decimal) error {
	sum := Sum(lines)
	if !pricing.WithinTolerance(sum, total) {
		return &MismatchError{Sum: sum, Total: total}
	}
	return nil
}

// Validate checks an allocation against the sale total.
func Validate(a Allocation, total decimal.Decimal) error {
	switch v := a.(type) {
	case Single:
		if !v.Method.Valid() {
			return fmt.Errorf("%w: %w", ErrInvalidAllocation, ErrUnknownMethod)
		}
		return nil
	case Mixed:
		if len(v.Lines) == 0 {
			return fmt.Errorf("%w: mixed payment requires at least one line", ErrInvalidAllocation)
		}
		for i, l := range v.Lines {
			if !l.Method.Valid() {
				return fmt.Errorf("%w: line %d: %w", ErrInvalidAllocation, i, ErrUnknownMethod)
			}
			if l.Amount.IsNegative() {
				return fmt.Errorf("%w: line %d: amount must not be negative", ErrInvalidAllocation, i)
			}
		}
		return ValidateMixed(v.Lines, total)
	case nil:
		return fmt.Errorf("%w: allocation is required", ErrInvalidAllocation)
	default:
		return fmt.Errorf("%w: unsupported allocation %T", ErrInvalidAllocation, a)
	}
}

// Breakdown expands an allocation into the concrete charges for total.
func Breakdown(a Allocation, total decimal.Decimal) []Line {
	switch v := a.(type) {
	case Single:
		return []Line{{Method: v.Method, Amount: total, Installments: normaliseInstallments(v.Method, v.Installments)}}
	case Mixed:
		out := make([]Line, 0, len(v.Lines))
		for _, l := range v.Lines {
			out = append(out, Line{Method: l.Method, Amount: l.Amount, Installments: normaliseInstallments(l.Method, l.Installments)})
		}
		return out
	default:
		return nil
	}
}

// AmountFor sums the charges made with m.
func AmountFor(lines []Line, m Method) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Method == m {
			sum = sum.Add(l.Amount)
		}
	}
	return sum
}

// Uses reports whether any charge of a is made with m.
func Uses(a Allocation, m Method) bool {
	switch v := a.(type) {
	case Single:
		return v.Method == m
	case Mixed:
		for _, l := range v.Lines {
			if l.Method == m {
				return true
			}
		}
	}
	return false
}

// Form is the wire form of an Allocation.
type Form struct {
	Mode         Mode       `json:"mode" validate:"omitempty,oneof=single mixed"`
	Method       string     `json:"method,omitempty"`
	Installments int        `json:"installments,omitempty" validate:"omitempty,min=1,max=24"`
	Payments     []LineForm `json:"payments,omitempty" validate:"omitempty,dive"`
}

// LineForm is the wire form of a mixed payment line.
type LineForm struct {
	Method       string          `json:"method" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Installments int             `json:"installments,omitempty" validate:"omitempty,min=1,max=24"`
}

// Allocation converts the wire form into a typed Allocation.
func (s Form) Allocation() (Allocation, error) {
	mode := s.Mode
	if mode == "" {
		mode = ModeSingle
		if len(s.Payments) > 0 {
			mode = ModeMixed
		}
	}
	switch mode {
	case ModeSingle:
		if strings.TrimSpace(s.Method) == "" {
			return nil, fmt.Errorf("%w: method is required", ErrInvalidAllocation)
		}
		m, err := ParseMethod(s.Method)
		if err != nil {
			return nil, err
		}
		return Single{Method: m, Installments: normaliseInstallments(m, s.Installments)}, nil
	case ModeMixed:
		lines := make([]Line, 0, len(s.Payments))
		for _, p := range s.Payments {
			m, err := ParseMethod(p.Method)
			if err != nil {
				return nil, err
			}
			lines = append(lines, Line{Method: m, Amount: p.Amount, Installments: normaliseInstallments(m, p.Installments)})
		}
		return Mixed{Lines: lines}, nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidAllocation, s.Mode)
	}
}

// Describe converts an Allocation back into its wire form.
func Describe(a Allocation) Form {
	switch v := a.(type) {
	case Single:
		return Form{Mode: ModeSingle, Method: string(v.Method), Installments: v.Installments}
	case Mixed:
		lines := make([]LineForm, 0, len(v.Lines))
		for _, l := range v.Lines {
			lines = append(lines, LineForm{Method: string(l.Method), Amount: l.Amount, Installments: l.Installments})
		}
		return Form{Mode: ModeMixed, Payments: lines}
	default:
		return Form{}
	}
}
