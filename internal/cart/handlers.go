package cart

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

// LineView is the JSON rendering of a cart line.
type LineView struct {
	ProductID   string `json:"productId"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Subtotal    string `json:"subtotal"`
	Manual      bool   `json:"manual,omitempty"`
}

// View is the JSON rendering of a session.
type View struct {
	ID         string     `json:"id"`
	State      State      `json:"state"`
	CustomerID string     `json:"customerId,omitempty"`
	SaleID     string     `json:"saleId,omitempty"`
	Lines      []LineView `json:"lines"`
	Pieces     int        `json:"pieces"`
	Subtotal   string     `json:"subtotal"`
}

// NewView renders sess with derived subtotals.
func NewView(sess Session) View {
	lines := make([]LineView, 0, sess.Cart.Len())
	for _, l := range sess.Cart.Lines {
		lines = append(lines, LineView{
			ProductID:   l.ProductID,
			Code:        l.Code,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   pricing.Format(l.UnitPrice),
			Subtotal:    pricing.Format(l.Subtotal()),
			Manual:      l.Manual,
		})
	}
	return View{
		ID:         sess.ID,
		State:      sess.State,
		CustomerID: sess.CustomerID,
		SaleID:     sess.SaleID,
		Lines:      lines,
		Pieces:     sess.Cart.Pieces(),
		Subtotal:   pricing.Format(sess.Cart.Subtotal()),
	}
}

// Open starts a new checkout session for the caller.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	sess, err := h.Svc.Open(r.Context(), p, branchID)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": NewView(sess)})
}

// Get returns cart contents with derived totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	sess, err := h.Svc.Get(r.Context(), p, branchID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(sess)})
}

type addItemRequest struct {
	Code        string           `json:"code" validate:"max=64"`
	Description string           `json:"description" validate:"max=200"`
	UnitPrice   *decimal.Decimal `json:"unitPrice"`
}

// AddItem adds a catalogue product by code, or a manual line when the code is
// "0" or absent and a description with a price is sent.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	var payload addItemRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	code := strings.TrimSpace(payload.Code)
	var sess Session
	if code == "" || (code == ManualCode && payload.UnitPrice != nil) {
		if payload.UnitPrice == nil {
			WriteError(w, common.ValidationError("unitPrice is required for manual items", ErrInvalidInput))
			return
		}
		sess, err = h.Svc.AddManual(r.Context(), p, branchID, id, payload.Description, *payload.UnitPrice)
	} else {
		sess, err = h.Svc.AddByCode(r.Context(), p, branchID, id, code)
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(sess)})
}

// SetQuantity updates the quantity of a line; zero or less removes it.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		WriteError(w, err)
		return
	}
	sess, err := h.Svc.SetQuantity(r.Context(), p, branchID, chi.URLParam(r, "id"), chi.URLParam(r, "productID"), payload.Quantity)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(sess)})
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	sess, err := h.Svc.Remove(r.Context(), p, branchID, chi.URLParam(r, "id"), chi.URLParam(r, "productID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(sess)})
}

// Reset clears the cart.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	sess, err := h.Svc.Reset(r.Context(), p, branchID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(sess)})
}

// WriteError maps cart errors onto the API error shape.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case common.IsAppError(err):
		common.WriteError(w, err)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", err.Error(), nil)
	case errors.Is(err, ErrSessionClosed):
		common.JSONError(w, http.StatusConflict, "CART_SUBMITTED", err.Error(), nil)
	case errors.Is(err, ErrForeignBranchProduct):
		common.JSONError(w, http.StatusUnprocessableEntity, "FOREIGN_BRANCH_PRODUCT", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
