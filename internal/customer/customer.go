// Package customer holds the store credit and on-account balances of customers.
package customer

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned for unknown customers.
	ErrNotFound = errors.New("customer not found")
	// ErrCreditBalanceExceeded is returned when an adjustment would take the
	// store credit below zero. The adjustment is settled as failed.
	ErrCreditBalanceExceeded = errors.New("store credit balance would go negative")
)

// Customer is a buyer registered at a branch.
type Customer struct {
	ID          string          `json:"id"`
	BranchID    string          `json:"branchId"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone,omitempty"`
	StoreCredit decimal.Decimal `json:"storeCredit"`
	DebtBalance decimal.Decimal `json:"debtBalance"`
	CreditLimit decimal.Decimal `json:"creditLimit"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// AvailableCredit is the store credit the customer can spend.
func (c Customer) AvailableCredit() decimal.Decimal {
	if c.StoreCredit.IsNegative() {
		return decimal.Zero
	}
	return c.StoreCredit
}

// RemainingLimit is how much more may be sold on account. ok is false when
// the customer has no limit configured.
func (c Customer) RemainingLimit() (remaining decimal.Decimal, ok bool) {
	if !c.CreditLimit.IsPositive() {
		return decimal.Zero, false
	}
	remaining = c.CreditLimit.Sub(c.DebtBalance)
	if remaining.IsNegative() {
		return decimal.Zero, true
	}
	return remaining, true
}

// Adjustment identifies a pending change to a customer's store credit.
type Adjustment struct {
	ID         string          `json:"id"`
	BranchID   string          `json:"branchId"`
	CustomerID string          `json:"customerId"`
	SaleID     string          `json:"saleId,omitempty"`
	Delta      decimal.Decimal `json:"delta"`
}

// Store reads customers and settles credit adjustments.
type Store interface {
	Customer(ctx context.Context, branchID, id string) (Customer, error)
	// ApplyCreditAdjustment settles a pending adjustment in one transaction.
	// An adjustment already applied is a no-op; one that would overdraw the
	// balance is marked failed and ErrCreditBalanceExceeded is returned.
	ApplyCreditAdjustment(ctx context.Context, adjustmentID string) (Customer, error)
}
