package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/customer"
	"github.com/noah-isme/backend-pdv/internal/payment"
	"github.com/noah-isme/backend-pdv/internal/pricing"
)

// Handler exposes quote, checkout and sale endpoints.
type Handler struct {
	Svc   *Service
	Carts *cart.Service
}

type installmentView struct {
	Method       payment.Method `json:"method"`
	Count        int            `json:"count"`
	PerPayment   string         `json:"perPayment"`
	ChargedTotal string         `json:"chargedTotal"`
}

type quoteView struct {
	Sale         FinalizedSale     `json:"sale"`
	Cart         cart.View         `json:"cart"`
	Installments []installmentView `json:"installments,omitempty"`
	MaxCredit    *string           `json:"maxUsableCredit,omitempty"`
}

// Quote handles POST /carts/{id}/quote: it validates the cart against the
// requested adjustments and payment and moves the session to ready.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ctx := r.Context()
	var sale FinalizedSale
	sess, err := h.Carts.Update(ctx, p, branchID, chi.URLParam(r, "id"), func(sess *cart.Session) error {
		s, err := h.Svc.Prepare(ctx, p, branchID, sess.Cart.Snapshot(), req)
		if err != nil {
			return err
		}
		sale = s
		sess.CustomerID = req.CustomerID
		return sess.MarkReady(h.Svc.now())
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := quoteView{Sale: sale, Cart: cart.NewView(sess), Installments: installments(sale.Payments)}
	if sale.CustomerID != "" {
		if limit, err := h.maxCredit(ctx, branchID, sale); err == nil {
			out.MaxCredit = &limit
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) maxCredit(ctx context.Context, branchID string, sale FinalizedSale) (string, error) {
	if h.Svc.Customers == nil {
		return "", errors.New("customer lookup not configured")
	}
	c, err := h.Svc.Customers.Customer(ctx, branchID, sale.CustomerID)
	if err != nil {
		return "", err
	}
	return pricing.Format(pricing.MaxUsableCredit(c.AvailableCredit(), pricing.Total(sale.Subtotal, sale.Discount, decimal.Zero))), nil
}

func installments(lines []payment.Line) []installmentView {
	var out []installmentView
	for _, l := range lines {
		if l.Installments <= 1 {
			continue
		}
		per, err := pricing.InstallmentPreview(l.Amount, l.Installments)
		if err != nil {
			continue
		}
		out = append(out, installmentView{Method: l.Method, Count: l.Installments, PerPayment: pricing.Format(per), ChargedTotal: pricing.Format(l.Amount)})
	}
	return out
}

// Checkout handles POST /carts/{id}/checkout. Without an idempotency header
// the cart id itself keys the sale, so a cart yields at most one sale.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ctx := r.Context()
	cartID := chi.URLParam(r, "id")
	key := r.Header.Get(common.IdempotencyHeader)
	if key == "" {
		key = "cart:" + cartID
	}

	var receipt Receipt
	sess, err := h.Carts.Update(ctx, p, branchID, cartID, func(sess *cart.Session) error {
		if sess.State == cart.StateSubmitted {
			rc, err := h.Svc.Receipt(ctx, branchID, key)
			if err == nil && rc.SaleID == sess.SaleID {
				receipt = rc
				return nil
			}
			return cart.ErrSessionClosed
		}
		sale, err := h.Svc.Prepare(ctx, p, branchID, sess.Cart.Snapshot(), req)
		if err != nil {
			return err
		}
		rc, err := h.Svc.Submit(ctx, sale, key)
		if err != nil {
			return err
		}
		receipt = rc
		if sess.State == cart.StateSubmitted {
			return nil
		}
		return sess.MarkSubmitted(rc.SaleID, h.Svc.now())
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	common.JSON(w, status, map[string]any{"data": map[string]any{
		"receipt": receipt,
		"cart":    cart.NewView(sess),
	}})
}

// GetSale handles GET /sales/{id}.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	sale, err := h.Svc.Sale(r.Context(), branchID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sale})
}

// Reverse handles POST /sales/{id}/reverse.
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	sale, credit, err := h.Svc.Reverse(r.Context(), p, branchID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"sale": sale, "credit": credit}})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ErrEmptyCart, http.StatusUnprocessableEntity, "EMPTY_CART"},
	{ErrSellerRequired, http.StatusUnprocessableEntity, "SELLER_REQUIRED"},
	{ErrUnknownSeller, http.StatusUnprocessableEntity, "INVALID_SELLER"},
	{ErrPaymentMismatch, http.StatusUnprocessableEntity, "PAYMENT_MISMATCH"},
	{ErrInvalidCreditAmount, http.StatusUnprocessableEntity, "INVALID_CREDIT_AMOUNT"},
	{ErrCustomerRequired, http.StatusUnprocessableEntity, "CUSTOMER_REQUIRED"},
	{ErrInvalidSaleDate, http.StatusUnprocessableEntity, "INVALID_SALE_DATE"},
	{ErrCreditLimitExceeded, http.StatusUnprocessableEntity, "CREDIT_LIMIT_EXCEEDED"},
	{ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
	{ErrAlreadyReversed, http.StatusConflict, "ALREADY_REVERSED"},
	{ErrInvalidDiscount, http.StatusBadRequest, "VALIDATION_ERROR"},
	{payment.ErrInvalidAllocation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{payment.ErrUnknownMethod, http.StatusBadRequest, "VALIDATION_ERROR"},
	{ErrSaleNotFound, http.StatusNotFound, "NOT_FOUND"},
	{customer.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
}

func errorCode(err error) string {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.code
		}
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL"
}

func writeError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		var details any
		var mismatch *payment.MismatchError
		if errors.As(err, &mismatch) {
			details = map[string]string{
				"paid":       pricing.Format(mismatch.Sum),
				"total":      pricing.Format(mismatch.Total),
				"difference": pricing.Format(mismatch.Difference()),
			}
		}
		common.JSONError(w, m.status, m.code, err.Error(), details)
		return
	}
	// cart session errors keep the cart endpoints' codes
	cart.WriteError(w, err)
}
