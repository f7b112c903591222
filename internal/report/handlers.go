package report

import (
	"net/http"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
)

// Handler exposes report read endpoints.
type Handler struct {
	Svc *Service
}

// Branch returns per-seller aggregates between from and to (inclusive days).
func (h *Handler) Branch(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORT_NOT_CONFIGURED", "report service not configured", nil)
		return
	}
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	loc := h.Svc.loc()
	now := h.Svc.now().In(loc)
	first := now.AddDate(0, 0, 1-now.Day())
	from, err := common.QueryDate(r, "from", first, loc)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	to, err := common.QueryDate(r, "to", now, loc)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	to = to.AddDate(0, 0, 1)
	if !from.Before(to) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must not be after to", nil)
		return
	}
	rows, err := h.Svc.ByBranch(r.Context(), branchID, from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
