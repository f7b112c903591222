package payment

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMethod is returned when a payment method is not recognised.
var ErrUnknownMethod = errors.New("unknown payment method")

// Method identifies the instrument used to settle (part of) a sale.
type Method string

const (
	// MethodCash is paid in notes and coins and lands in the drawer.
	MethodCash Method = "dinheiro"
	// MethodCard covers debit and credit card terminals.
	MethodCard Method = "cartao"
	// MethodPix is an instant bank transfer.
	MethodPix Method = "pix"
	// MethodStoreCredit sells on account: the amount is posted to the customer's debt balance.
	MethodStoreCredit Method = "credito"
)

var methodAliases = map[string]Method{
	"dinheiro":     MethodCash,
	"cash":         MethodCash,
	"cartao":       MethodCard,
	"cartão":       MethodCard,
	"card":         MethodCard,
	"pix":          MethodPix,
	"credito":      MethodStoreCredit,
	"crédito":      MethodStoreCredit,
	"a_prazo":      MethodStoreCredit,
	"store_credit": MethodStoreCredit,
}

// Methods lists every method in display order.
func Methods() []Method {
	return []Method{MethodCash, MethodCard, MethodPix, MethodStoreCredit}
}

// ParseMethod normalises user input into a Method.
func ParseMethod(raw string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if m, ok := methodAliases[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, raw)
}

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodPix, MethodStoreCredit:
		return true
	default:
		return false
	}
}

// AllowsInstallments reports whether the method can be split into installments.
func (m Method) AllowsInstallments() bool {
	return m == MethodCard || m == MethodStoreCredit
}

// Label returns the till-facing name of the method.
func (m Method) Label() string {
	switch m {
	case MethodCash:
		return "Dinheiro"
	case MethodCard:
		return "Cartão"
	case MethodPix:
		return "PIX"
	case MethodStoreCredit:
		return "A Prazo"
	default:
		return string(m)
	}
}

func normaliseInstallments(m Method, n int) int {
	if !m.AllowsInstallments() || n < 1 {
		return 1
	}
	return n
}
