package checkout

import (
	"errors"

	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/payment"
)

var (
	// ErrEmptyCart is returned when a sale is finalized without lines.
	ErrEmptyCart = cart.ErrEmptyCart
	// ErrPaymentMismatch is returned when mixed payments do not cover the total.
	ErrPaymentMismatch = payment.ErrPaymentMismatch
	// ErrSellerRequired is returned when a supervisor finalizes without picking a seller.
	ErrSellerRequired = errors.New("seller is required")
	// ErrUnknownSeller is returned when the chosen seller is not an active
	// seller of the branch.
	ErrUnknownSeller = errors.New("seller is not an active seller of this branch")
	// ErrInvalidCreditAmount covers negative credit, credit above the usable
	// maximum and credit requested without a customer.
	ErrInvalidCreditAmount = errors.New("invalid store credit amount")
	// ErrInvalidDiscount is returned for a negative discount.
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrCustomerRequired is returned for sales on account without a customer.
	ErrCustomerRequired = errors.New("customer is required for sales on account")
	// ErrInvalidSaleDate is returned for a backdated sale set in the future.
	ErrInvalidSaleDate = errors.New("sale date must not be in the future")
	// ErrInsufficientStock is returned when a line sells more than is on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCreditLimitExceeded is returned when a sale on account exceeds the customer's limit.
	ErrCreditLimitExceeded = errors.New("customer credit limit exceeded")
	// ErrSaleNotFound is returned for unknown sale ids.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrAlreadyReversed is returned when a reversed sale is reversed again.
	ErrAlreadyReversed = errors.New("sale already reversed")
	// ErrAdjustmentNotFound is returned for unknown credit adjustments.
	ErrAdjustmentNotFound = errors.New("credit adjustment not found")
	// ErrDuplicateSale is returned by recorders when the idempotency key was already used.
	ErrDuplicateSale = errors.New("sale already recorded for idempotency key")
)
