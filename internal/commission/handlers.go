package commission

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
)

// Handler exposes commission configuration, goals, performance, advances
// and the monthly payroll.
type Handler struct {
	Svc *Service
}

type configRequest struct {
	BaseCommissionPercent decimal.Decimal `json:"baseCommissionPercent"`
	Tiers                 []Tier          `json:"tiers" validate:"required,min=1"`
}

// GetConfig returns the branch commission policy.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.Svc.Config(r.Context(), branchID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// PutConfig replaces the branch commission policy.
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var payload configRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.Svc.SaveConfig(r.Context(), branchID, Config{BaseCommissionPercent: payload.BaseCommissionPercent, Tiers: payload.Tiers})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// AddTier appends a bonus tier.
func (h *Handler) AddTier(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var payload Tier
	if err := common.DecodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.Svc.AddTier(r.Context(), branchID, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// RemoveTier deletes a bonus tier by index.
func (h *Handler) RemoveTier(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tier index must be a number", nil)
		return
	}
	cfg, err := h.Svc.RemoveTier(r.Context(), branchID, index)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

type goalRequest struct {
	SellerID     string          `json:"sellerId" validate:"required"`
	Year         int             `json:"year" validate:"required,min=2000"`
	Month        int             `json:"month" validate:"required,min=1,max=12"`
	Target       decimal.Decimal `json:"target"`
	PiecesTarget int             `json:"piecesTarget" validate:"min=0"`
}

// PutGoal sets a seller's monthly target.
func (h *Handler) PutGoal(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var payload goalRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	goal := Goal{
		BranchID:     branchID,
		SellerID:     payload.SellerID,
		Year:         payload.Year,
		Month:        time.Month(payload.Month),
		Target:       payload.Target,
		PiecesTarget: payload.PiecesTarget,
	}
	if err := h.Svc.SetGoal(r.Context(), goal); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": goal})
}

// Me returns the caller's own performance.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.performance(w, r, branchID, p.UserID)
}

// Seller returns the performance of the seller in the path.
func (h *Handler) Seller(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	sellerID := chi.URLParam(r, "sellerID")
	if !p.Role.Supervises() && sellerID != p.UserID {
		writeError(w, common.Forbidden("sellers may only view their own performance"))
		return
	}
	h.performance(w, r, branchID, sellerID)
}

func (h *Handler) performance(w http.ResponseWriter, r *http.Request, branchID, sellerID string) {
	year, month, ok := queryMonth(w, r)
	if !ok {
		return
	}
	perf, err := h.Svc.Performance(r.Context(), branchID, sellerID, year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": perf})
}

type advanceRequest struct {
	SellerID string          `json:"sellerId" validate:"required"`
	Year     int             `json:"year" validate:"required,min=2000"`
	Month    int             `json:"month" validate:"required,min=1,max=12"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note" validate:"max=500"`
}

// RecordAdvance books an advance for a seller of the branch.
func (h *Handler) RecordAdvance(w http.ResponseWriter, r *http.Request) {
	p, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var payload advanceRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.Svc.RecordAdvance(r.Context(), Advance{
		BranchID:  branchID,
		SellerID:  payload.SellerID,
		Year:      payload.Year,
		Month:     time.Month(payload.Month),
		Amount:    payload.Amount,
		Note:      payload.Note,
		CreatedBy: p.UserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": a})
}

// ListAdvances lists the month's advances, optionally filtered by sellerId.
func (h *Handler) ListAdvances(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	year, month, ok := queryMonth(w, r)
	if !ok {
		return
	}
	list, err := h.Svc.ListAdvances(r.Context(), branchID, r.URL.Query().Get("sellerId"), year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": list})
}

type advanceUpdate struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=500"`
}

// UpdateAdvance corrects an advance.
func (h *Handler) UpdateAdvance(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var payload advanceUpdate
	if err := common.DecodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.Svc.UpdateAdvance(r.Context(), branchID, chi.URLParam(r, "id"), payload.Amount, payload.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": a})
}

// DeleteAdvance removes an advance.
func (h *Handler) DeleteAdvance(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Svc.DeleteAdvance(r.Context(), branchID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Payouts returns the month's payroll. Advances listed in keep (comma
// separated ids) stay on the books instead of being deducted.
func (h *Handler) Payouts(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	year, month, ok := queryMonth(w, r)
	if !ok {
		return
	}
	var keep []string
	for _, id := range strings.Split(r.URL.Query().Get("keep"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			keep = append(keep, id)
		}
	}
	payout, err := h.Svc.BranchPayout(r.Context(), branchID, year, month, keep)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": payout})
}

func queryMonth(w http.ResponseWriter, r *http.Request) (int, time.Month, bool) {
	year := common.QueryInt(r, "year", 0)
	month := common.QueryInt(r, "month", 0)
	if month < 0 || month > 12 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "month must be between 1 and 12", nil)
		return 0, 0, false
	}
	return year, time.Month(month), true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case common.IsAppError(err):
		common.WriteError(w, err)
	case errors.Is(err, ErrInsufficientTierConfig):
		common.JSONError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_TIER_CONFIG", err.Error(), nil)
	case errors.Is(err, ErrTierNotFound), errors.Is(err, ErrAdvanceNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidGoal), errors.Is(err, ErrInvalidAdvance):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
