package customer

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
)

// Service exposes customer reads to the till.
type Service struct {
	Store Store
}

// Get returns the customer with id at branchID.
func (s *Service) Get(ctx context.Context, branchID, id string) (Customer, error) {
	if s == nil || s.Store == nil {
		return Customer{}, errors.New("customer service not configured")
	}
	if id == "" {
		return Customer{}, ErrNotFound
	}
	return s.Store.Customer(ctx, branchID, id)
}

// Handler serves customer endpoints.
type Handler struct {
	Svc *Service
}

type view struct {
	Customer
	AvailableCredit string  `json:"availableCredit"`
	RemainingLimit  *string `json:"remainingLimit,omitempty"`
}

// Get handles GET /customers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	_, branchID, err := branch.Actor(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.Get(r.Context(), branchID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	out := view{Customer: c, AvailableCredit: c.AvailableCredit().StringFixed(2)}
	if remaining, ok := c.RemainingLimit(); ok {
		s := remaining.StringFixed(2)
		out.RemainingLimit = &s
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}
