// Package middleware holds router guards shared by the API groups.
package middleware

import (
	"net/http"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
)

// RequireBranch rejects requests whose operator has no resolved filial.
// It runs after the branch resolver.
func RequireBranch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := branch.FromContext(r.Context()); !ok || id == "" {
			common.JSONError(w, http.StatusBadRequest, "BRANCH_REQUIRED", "operator is not assigned to a branch", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
