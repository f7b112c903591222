package audit

import (
	"net/http"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
)

// Handler exposes the audit trail to supervisors.
type Handler struct {
	Svc *Service
}

// List handles GET /api/v1/audit.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page := common.ParsePagination(r, 50, 200)
	entries, total, err := h.Svc.List(r.Context(), branchID, page.PerPage, page.Offset())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page.TotalItems = total
	common.JSON(w, http.StatusOK, map[string]any{"data": entries, "pagination": page})
}
