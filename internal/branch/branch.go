// Package branch resolves the filial (store branch) a request operates on.
package branch

import (
	"context"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/obs"
)

type contextKey string

const branchContextKey contextKey = "branch.id"

// DefaultHeader lets administrators act on another branch than their own.
const DefaultHeader = "X-Filial-ID"

// Resolver determines the branch of a request from the authenticated principal.
// Only administrators may override it through the header; every other role is
// pinned to the branch recorded on its account.
type Resolver struct {
	HeaderName string
}

// NewResolver returns a resolver reading overrides from headerName, or
// X-Filial-ID when empty.
func NewResolver(headerName string) *Resolver {
	if headerName == "" {
		headerName = DefaultHeader
	}
	return &Resolver{HeaderName: headerName}
}

// Middleware injects the resolved branch into the request context. It must run
// after authentication.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if id := r.Resolve(req); id != "" {
			obs.Annotate(req.Context(), map[string]string{"filial": id})
			req = req.WithContext(With(req.Context(), id))
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve returns the branch identifier for req, or "" when none applies.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	p, ok := common.PrincipalFrom(req.Context())
	if !ok {
		return ""
	}
	if p.Role == common.RoleAdmin {
		if override := strings.TrimSpace(req.Header.Get(r.HeaderName)); override != "" {
			return override
		}
	}
	return strings.TrimSpace(p.BranchID)
}

// With stores the branch identifier inside the context.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, branchContextKey, id)
}

// FromContext extracts the branch identifier from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(branchContextKey).(string)
	if !ok {
		return "", false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	return id, true
}

// PrefixKey namespaces a cache or lock key per branch.
func PrefixKey(branchID, key string) string {
	if branchID == "" {
		return key
	}
	return "filial:" + branchID + ":" + key
}

// Actor returns the authenticated principal and the branch resolved for ctx.
// Both are required by every till operation.
func Actor(ctx context.Context) (common.Principal, string, error) {
	p, ok := common.PrincipalFrom(ctx)
	if !ok {
		return common.Principal{}, "", common.NewAppError("UNAUTHORIZED", "authentication required", http.StatusUnauthorized, nil)
	}
	id, ok := FromContext(ctx)
	if !ok {
		return common.Principal{}, "", common.NewAppError("BRANCH_REQUIRED", "operator is not assigned to a branch", http.StatusBadRequest, nil)
	}
	return p, id, nil
}
