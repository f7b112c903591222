package drawer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/drawer"
	"github.com/noah-isme/backend-pdv/internal/payment"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSummarizeSplitsMixedAndSkipsReversed(t *testing.T) {
	sales := []drawer.SaleEntry{
		{ID: "s1", Total: dec("120"), Payments: []payment.Line{
			{Method: payment.MethodCash, Amount: dec("50")},
			{Method: payment.MethodPix, Amount: dec("70")},
		}},
		{ID: "s2", Total: dec("80"), Payments: []payment.Line{{Method: payment.MethodCard, Amount: dec("80"), Installments: 2}}},
		{ID: "s3", Total: dec("999"), Reversed: true, Payments: []payment.Line{{Method: payment.MethodCash, Amount: dec("999")}}},
	}
	s := drawer.Summarize(sales)
	require.Equal(t, 2, s.SalesCount)
	require.Equal(t, 1, s.ReversedCount)
	require.True(t, s.TotalGeneral.Equal(dec("200")))
	require.True(t, s.Amount(payment.MethodCash).Equal(dec("50")))
	require.True(t, s.Amount(payment.MethodPix).Equal(dec("70")))
	require.True(t, s.Amount(payment.MethodCard).Equal(dec("80")))
	require.True(t, s.Amount(payment.MethodStoreCredit).IsZero())

	totals := s.Totals()
	require.Len(t, totals, 4)
	require.Equal(t, "50.00", totals[0].Amount)
}

func TestReconcile(t *testing.T) {
	movements := []drawer.Movement{
		{Kind: drawer.KindOpening, Amount: dec("100")},
		{Kind: drawer.KindWithdrawal, Amount: dec("40")},
		{Kind: drawer.KindTopUp, Amount: dec("10")},
	}
	opening := drawer.OpeningFloat(movements)
	require.True(t, opening.Equal(dec("100")))

	rec := drawer.Reconcile(opening, dec("250"), movements, dec("320"))
	require.True(t, rec.Expected.Equal(dec("320")))
	require.True(t, rec.Deviation.IsZero())
	require.True(t, rec.Balanced)

	rec = drawer.Reconcile(opening, dec("250"), movements, dec("315.5"))
	require.Equal(t, "-4.50", rec.Deviation.StringFixed(2))
	require.False(t, rec.Balanced)

	rec = drawer.Reconcile(opening, dec("250"), movements, dec("320.01"))
	require.True(t, rec.Balanced)
}

func TestMovementValidate(t *testing.T) {
	require.ErrorIs(t, drawer.Movement{Kind: "other", Amount: dec("1")}.Validate(), drawer.ErrInvalidMovement)
	require.ErrorIs(t, drawer.Movement{Kind: drawer.KindTopUp}.Validate(), drawer.ErrInvalidMovement)
	require.NoError(t, drawer.Movement{Kind: drawer.KindTopUp, Amount: dec("1")}.Validate())
}

type memStore struct {
	sales     []drawer.SaleEntry
	movements []drawer.Movement
	closings  []drawer.Closing
	from, to  time.Time
}

func (m *memStore) SalesBetween(_ context.Context, _, sellerID string, from, to time.Time) ([]drawer.SaleEntry, error) {
	m.from, m.to = from, to
	var out []drawer.SaleEntry
	for _, s := range m.sales {
		if sellerID == "" || s.SellerID == sellerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) MovementsBetween(context.Context, string, time.Time, time.Time) ([]drawer.Movement, error) {
	return m.movements, nil
}

func (m *memStore) InsertMovement(_ context.Context, mv drawer.Movement) error {
	m.movements = append(m.movements, mv)
	return nil
}

func (m *memStore) SaveClosing(_ context.Context, c drawer.Closing) error {
	m.closings = append(m.closings, c)
	return nil
}

func TestHandlersCloseTheDay(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	now := time.Date(2024, 5, 10, 18, 0, 0, 0, loc)
	store := &memStore{sales: []drawer.SaleEntry{
		{ID: "s1", SellerID: "v1", Total: dec("60"), Payments: []payment.Line{{Method: payment.MethodCash, Amount: dec("60")}}},
		{ID: "s2", SellerID: "v2", Total: dec("40"), Payments: []payment.Line{{Method: payment.MethodCash, Amount: dec("40")}}},
	}}
	h := &drawer.Handler{Svc: &drawer.Service{Store: store, Loc: loc, Now: func() time.Time { return now }}}
	r := chi.NewRouter()
	r.Post("/drawer/movements", h.AddMovement)
	r.Get("/drawer/closing", h.Closing)
	r.Post("/drawer/closing/reconcile", h.Reconcile)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		ctx := common.WithPrincipal(req.Context(), common.Principal{UserID: "g1", Role: common.RoleManager, BranchID: "b1"})
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req.WithContext(branch.With(ctx, "b1")))
		return rr
	}

	require.Equal(t, http.StatusCreated, do(http.MethodPost, "/drawer/movements", `{"kind":"abertura","amount":"100"}`).Code)
	require.Equal(t, http.StatusCreated, do(http.MethodPost, "/drawer/movements", `{"kind":"sangria","amount":"30"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/drawer/movements", `{"kind":"sangria","amount":"0"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/drawer/movements", `{"kind":"roubo","amount":"5"}`).Code)

	rr := do(http.MethodGet, "/drawer/closing?date=2024-05-10&sellerId=v1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"salesCount":1`)
	require.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, loc), store.from)
	require.Equal(t, time.Date(2024, 5, 11, 0, 0, 0, 0, loc), store.to)

	rr = do(http.MethodPost, "/drawer/closing/reconcile", `{"date":"2024-05-10","declaredCash":"170"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, store.closings, 1)
	rec := store.closings[0].Reconciliation
	require.True(t, rec.Expected.Equal(dec("170")))
	require.True(t, rec.Balanced)
	require.Equal(t, "g1", store.closings[0].ClosedBy)
}
