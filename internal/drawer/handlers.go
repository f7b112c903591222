package drawer

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
)

// Handler serves drawer endpoints.
type Handler struct {
	Svc *Service
}

type movementRequest struct {
	Kind   MovementKind    `json:"kind" validate:"required,oneof=abertura sangria suprimento"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=500"`
}

// AddMovement handles POST /drawer/movements.
func (h *Handler) AddMovement(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req movementRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	m, err := h.Svc.AddMovement(r.Context(), p, branchID, req.Kind, req.Amount, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": m})
}

// Closing handles GET /drawer/closing?date=YYYY-MM-DD&sellerId=.
func (h *Handler) Closing(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	day, err := common.QueryDate(r, "date", h.Svc.now(), h.Svc.loc())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.Closing(r.Context(), branchID, strings.TrimSpace(r.URL.Query().Get("sellerId")), day)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

type reconcileRequest struct {
	Date     string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	SellerID string          `json:"sellerId" validate:"omitempty,max=64"`
	Declared decimal.Decimal `json:"declaredCash"`
	Note     string          `json:"note" validate:"max=500"`
}

// Reconcile handles POST /drawer/closing/reconcile.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req reconcileRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	day := h.Svc.now()
	if req.Date != "" {
		day, err = time.ParseInLocation("2006-01-02", req.Date, h.Svc.loc())
		if err != nil {
			common.WriteError(w, common.ValidationError("date must be formatted as YYYY-MM-DD", err))
			return
		}
	}
	c, err := h.Svc.Close(r.Context(), p, branchID, req.SellerID, day, req.Declared, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidMovement) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "movement needs a known kind and a positive amount", nil)
		return
	}
	common.WriteError(w, err)
}
