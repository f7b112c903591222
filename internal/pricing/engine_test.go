package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeScenarioA(t *testing.T) {
	items := []Item{
		{Quantity: 2, UnitPrice: dec("50.00")},
		{Quantity: 1, UnitPrice: dec("30.00")},
	}
	summary := Compute(items, Adjustments{Discount: dec("10.00")})
	if !summary.Subtotal.Equal(dec("130.00")) {
		t.Fatalf("expected subtotal 130.00, got %s", summary.Subtotal)
	}
	if !summary.Total.Equal(dec("120.00")) {
		t.Fatalf("expected total 120.00, got %s", summary.Total)
	}
}

func TestTotalFloorsAtZero(t *testing.T) {
	total := Total(dec("50.00"), dec("40.00"), dec("30.00"))
	if !total.IsZero() {
		t.Fatalf("expected zero total, got %s", total)
	}
}

func TestMaxUsableCreditScenarioC(t *testing.T) {
	max := MaxUsableCredit(dec("200.00"), dec("120.00"))
	if !max.Equal(dec("120.00")) {
		t.Fatalf("expected 120.00, got %s", max)
	}
	if total := Total(dec("120.00"), decimal.Zero, max); !total.IsZero() {
		t.Fatalf("expected total 0 after applying full credit, got %s", total)
	}
}

func TestMaxUsableCreditNeverNegative(t *testing.T) {
	if got := MaxUsableCredit(dec("-5"), dec("10")); !got.IsZero() {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestSubtotalSkipsNonPositiveQuantities(t *testing.T) {
	got := Subtotal([]Item{{Quantity: 0, UnitPrice: dec("10")}, {Quantity: 3, UnitPrice: dec("1.10")}})
	if !got.Equal(dec("3.30")) {
		t.Fatalf("expected 3.30, got %s", got)
	}
}

func TestWithinToleranceBoundary(t *testing.T) {
	if !WithinTolerance(dec("120.01"), dec("120.00")) {
		t.Fatal("0.01 difference must be accepted")
	}
	if WithinTolerance(dec("120.02"), dec("120.00")) {
		t.Fatal("0.02 difference must be rejected")
	}
}

func TestInstallmentPreview(t *testing.T) {
	got, err := InstallmentPreview(dec("100.00"), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(dec("33.33")) {
		t.Fatalf("expected 33.33, got %s", got)
	}
	if _, err := InstallmentPreview(dec("100.00"), 0); !errors.Is(err, ErrInvalidInstallments) {
		t.Fatalf("expected ErrInvalidInstallments, got %v", err)
	}
}

func TestAdjustmentsValidate(t *testing.T) {
	if err := (Adjustments{Discount: dec("-1")}).Validate(); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	if err := (Adjustments{Discount: dec("1"), StoreCredit: dec("2")}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
