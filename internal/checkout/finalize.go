package checkout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/payment"
	"github.com/noah-isme/backend-pdv/internal/pricing"
)

// Flags mark how a sale happened.
type Flags struct {
	Online    bool `json:"online"`
	Backorder bool `json:"backorder"`
	Exchange  bool `json:"exchange"`
}

// CustomerSnapshot is the customer state read when the sale is finalized.
type CustomerSnapshot struct {
	ID              string          `json:"id"`
	AvailableCredit decimal.Decimal `json:"availableCredit"`
}

// Input gathers everything Finalize needs. Nothing is read ambiently.
type Input struct {
	Lines           []cart.Line
	BranchID        string
	Operator        common.Principal
	SellerID        string
	Customer        *CustomerSnapshot
	Discount        decimal.Decimal
	StoreCredit     decimal.Decimal
	Allocation      payment.Allocation
	Flags           Flags
	RequestedSoldAt *time.Time
	Now             time.Time
}

// FinalizedSale is a validated sale ready to be recorded. It is never mutated.
type FinalizedSale struct {
	BranchID           string             `json:"branchId"`
	OperatorID         string             `json:"operatorId"`
	SellerID           string             `json:"sellerId"`
	CustomerID         string             `json:"customerId,omitempty"`
	Lines              []cart.Line        `json:"lines"`
	Subtotal           decimal.Decimal    `json:"subtotal"`
	Discount           decimal.Decimal    `json:"discount"`
	StoreCreditApplied decimal.Decimal    `json:"storeCreditApplied"`
	Total              decimal.Decimal    `json:"total"`
	Allocation         payment.Allocation `json:"-"`
	Payments           []payment.Line     `json:"payments"`
	Flags              Flags              `json:"flags"`
	SoldAt             time.Time          `json:"soldAt"`
}

// MarshalJSON renders the allocation in its wire form.
func (s FinalizedSale) MarshalJSON() ([]byte, error) {
	type alias FinalizedSale
	return json.Marshal(struct {
		alias
		Payment payment.Form `json:"payment"`
	}{alias: alias(s), Payment: payment.Describe(s.Allocation)})
}

// Pieces counts the units sold.
func (s FinalizedSale) Pieces() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

// CreditDelta is the change to the customer's store credit caused by the sale:
// the credit spent is taken off, an exchange credits the sale total back.
func (s FinalizedSale) CreditDelta() decimal.Decimal {
	delta := s.StoreCreditApplied.Neg()
	if s.Flags.Exchange && s.CustomerID != "" {
		delta = delta.Add(s.Total)
	}
	return delta
}

// OnAccount is the amount posted to the customer's debt balance.
func (s FinalizedSale) OnAccount() decimal.Decimal {
	return payment.AmountFor(s.Payments, payment.MethodStoreCredit)
}

// Finalize validates in and freezes it into a FinalizedSale. It either
// succeeds completely or returns the first failing check.
func Finalize(in Input) (FinalizedSale, error) {
	if len(in.Lines) == 0 {
		return FinalizedSale{}, ErrEmptyCart
	}
	seller, err := resolveSeller(in.Operator, in.SellerID)
	if err != nil {
		return FinalizedSale{}, err
	}
	if in.Discount.IsNegative() {
		return FinalizedSale{}, fmt.Errorf("%w: %w", ErrInvalidDiscount, pricing.ErrNegativeAmount)
	}

	items := make([]pricing.Item, 0, len(in.Lines))
	for _, l := range in.Lines {
		items = append(items, pricing.Item{Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	subtotal := pricing.Subtotal(items)

	credit := in.StoreCredit
	if err := checkCredit(credit, in.Customer, pricing.Total(subtotal, in.Discount, decimal.Zero)); err != nil {
		return FinalizedSale{}, err
	}
	total := pricing.Total(subtotal, in.Discount, credit)

	if err := payment.Validate(in.Allocation, total); err != nil {
		return FinalizedSale{}, err
	}
	if payment.Uses(in.Allocation, payment.MethodStoreCredit) && in.Customer == nil {
		return FinalizedSale{}, ErrCustomerRequired
	}

	soldAt, err := resolveSoldAt(in.Operator, in.RequestedSoldAt, in.Now)
	if err != nil {
		return FinalizedSale{}, err
	}

	lines := make([]cart.Line, len(in.Lines))
	copy(lines, in.Lines)
	sale := FinalizedSale{
		BranchID:           in.BranchID,
		OperatorID:         in.Operator.UserID,
		SellerID:           seller,
		Lines:              lines,
		Subtotal:           subtotal,
		Discount:           in.Discount,
		StoreCreditApplied: credit,
		Total:              total,
		Allocation:         in.Allocation,
		Payments:           payment.Breakdown(in.Allocation, total),
		Flags:              in.Flags,
		SoldAt:             soldAt,
	}
	if in.Customer != nil {
		sale.CustomerID = in.Customer.ID
	}
	return sale, nil
}

func resolveSeller(op common.Principal, requested string) (string, error) {
	if op.Role.Supervises() {
		if requested == "" {
			return "", ErrSellerRequired
		}
		return requested, nil
	}
	if op.UserID == "" {
		return "", ErrSellerRequired
	}
	return op.UserID, nil
}

func checkCredit(credit decimal.Decimal, customer *CustomerSnapshot, preCredit decimal.Decimal) error {
	if credit.IsNegative() {
		return fmt.Errorf("%w: must not be negative", ErrInvalidCreditAmount)
	}
	if credit.IsZero() {
		return nil
	}
	if customer == nil {
		return fmt.Errorf("%w: no customer selected", ErrInvalidCreditAmount)
	}
	limit := pricing.MaxUsableCredit(customer.AvailableCredit, preCredit)
	if credit.GreaterThan(limit) {
		return fmt.Errorf("%w: at most %s usable", ErrInvalidCreditAmount, pricing.Format(limit))
	}
	return nil
}

// only supervisors may backdate; other operators always sell "now".
func resolveSoldAt(op common.Principal, requested *time.Time, now time.Time) (time.Time, error) {
	if requested == nil || requested.IsZero() || !op.Role.Supervises() {
		return now, nil
	}
	if requested.After(now) {
		return time.Time{}, ErrInvalidSaleDate
	}
	return *requested, nil
}
