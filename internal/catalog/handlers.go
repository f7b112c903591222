package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/common"
)

// Handler exposes catalogue endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Lookup handles GET /api/v1/products/lookup?code=.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", map[string]any{"field": "code"})
		return
	}
	p, err := h.service.ProductByCode(r.Context(), branchID, code)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Search handles GET /api/v1/products?q=&page=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	pg := common.ParsePagination(r, h.service.defaultLimit, h.service.maxLimit)
	result, err := h.service.Search(r.Context(), branchID, SearchParams{Term: r.URL.Query().Get("q"), Page: pg.Page, Limit: pg.PerPage})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: result.Total},
	})
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, cart.ErrProductNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.WriteError(w, err)
}
