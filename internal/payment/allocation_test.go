package payment_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pdv/internal/payment"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestValidateMixedScenarioB(t *testing.T) {
	lines := []payment.Line{
		{Method: payment.MethodCash, Amount: dec("50.00")},
		{Method: payment.MethodPix, Amount: dec("70.00")},
	}
	require.NoError(t, payment.ValidateMixed(lines, dec("120.00")))
}

func TestValidateMixedScenarioB2(t *testing.T) {
	lines := []payment.Line{
		{Method: payment.MethodCash, Amount: dec("50.00")},
		{Method: payment.MethodPix, Amount: dec("60.00")},
	}
	err := payment.ValidateMixed(lines, dec("120.00"))
	require.ErrorIs(t, err, payment.ErrPaymentMismatch)

	var mismatch *payment.MismatchError
	require.True(t, errors.As(err, &mismatch))
	require.True(t, mismatch.Difference().Equal(dec("10.00")))
}

func TestValidateMixedTolerance(t *testing.T) {
	lines := []payment.Line{{Method: payment.MethodCard, Amount: dec("99.99")}}
	require.NoError(t, payment.ValidateMixed(lines, dec("100.00")))
	lines[0].Amount = dec("99.98")
	require.ErrorIs(t, payment.ValidateMixed(lines, dec("100.00")), payment.ErrPaymentMismatch)
}

func TestValidateRejectsNegativeLines(t *testing.T) {
	alloc := payment.Mixed{Lines: []payment.Line{
		{Method: payment.MethodCash, Amount: dec("150.00")},
		{Method: payment.MethodPix, Amount: dec("-30.00")},
	}}
	require.ErrorIs(t, payment.Validate(alloc, dec("120.00")), payment.ErrInvalidAllocation)
}

func TestValidateSingleIgnoresAmounts(t *testing.T) {
	require.NoError(t, payment.Validate(payment.Single{Method: payment.MethodPix}, dec("87.40")))
	require.ErrorIs(t, payment.Validate(nil, dec("1")), payment.ErrInvalidAllocation)
}

func TestBreakdownNormalisesInstallments(t *testing.T) {
	lines := payment.Breakdown(payment.Single{Method: payment.MethodPix, Installments: 6}, dec("30.00"))
	require.Len(t, lines, 1)
	require.Equal(t, 1, lines[0].Installments)
	require.True(t, lines[0].Amount.Equal(dec("30.00")))

	lines = payment.Breakdown(payment.Mixed{Lines: []payment.Line{
		{Method: payment.MethodCard, Amount: dec("20"), Installments: 3},
		{Method: payment.MethodCash, Amount: dec("10"), Installments: 0},
	}}, dec("30"))
	require.Equal(t, 3, lines[0].Installments)
	require.Equal(t, 1, lines[1].Installments)
}

func TestFormRoundTrip(t *testing.T) {
	form := payment.Form{Payments: []payment.LineForm{
		{Method: "Dinheiro", Amount: dec("50")},
		{Method: "pix", Amount: dec("70")},
	}}
	alloc, err := form.Allocation()
	require.NoError(t, err)
	mixed, ok := alloc.(payment.Mixed)
	require.True(t, ok)
	require.Equal(t, payment.MethodCash, mixed.Lines[0].Method)
	require.Equal(t, payment.ModeMixed, payment.Describe(alloc).Mode)

	_, err = payment.Form{Mode: payment.ModeSingle, Method: "cheque"}.Allocation()
	require.ErrorIs(t, err, payment.ErrUnknownMethod)

	_, err = payment.Form{Mode: payment.ModeSingle}.Allocation()
	require.ErrorIs(t, err, payment.ErrInvalidAllocation)
}

func TestValidateMixedOrderIndependence(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	methods := payment.Methods()

	properties.Property("validation outcome does not depend on line order", prop.ForAll(
		func(amounts []int64, total int64, seed int64) bool {
			lines := make([]payment.Line, 0, len(amounts))
			for i, a := range amounts {
				lines = append(lines, payment.Line{Method: methods[i%len(methods)], Amount: decimal.New(a, -2)})
			}
			shuffled := append([]payment.Line(nil), lines...)
			rng := rand.New(rand.NewSource(seed))
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

			want := payment.ValidateMixed(lines, decimal.New(total, -2)) == nil
			got := payment.ValidateMixed(shuffled, decimal.New(total, -2)) == nil
			return want == got
		},
		gen.SliceOf(gen.Int64Range(0, 100_000)),
		gen.Int64Range(0, 1_000_000),
		gen.Int64(),
	))

	properties.Property("succeeds iff the sum is within one cent", prop.ForAll(
		func(amounts []int64, offset int64) bool {
			var sum int64
			lines := make([]payment.Line, 0, len(amounts))
			for _, a := range amounts {
				sum += a
				lines = append(lines, payment.Line{Method: payment.MethodCash, Amount: decimal.New(a, -2)})
			}
			total := decimal.New(sum+offset, -2)
			ok := payment.ValidateMixed(lines, total) == nil
			return ok == (offset >= -1 && offset <= 1)
		},
		gen.SliceOf(gen.Int64Range(0, 100_000)),
		gen.Int64Range(-5, 5),
	))

	properties.TestingRun(t)
}
