package common

import (
	"context"
	"slices"
)

type ctxKey string

const principalKey ctxKey = "auth/principal"

// Role is the access level of a till operator.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "gerente"
	RoleSeller  Role = "vendedora"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleSeller
}

// Supervises reports whether the role acts on behalf of other sellers. Such
// operators must pick the seller of a sale explicitly and may backdate it.
func (r Role) Supervises() bool {
	return r == RoleAdmin || r == RoleManager
}

// Principal is the authenticated operator behind a request.
type Principal struct {
	UserID   string `json:"userId"`
	Name     string `json:"name,omitempty"`
	Role     Role   `json:"role"`
	BranchID string `json:"branchId,omitempty"`
}

// HasRole reports whether the principal holds any of roles.
func (p Principal) HasRole(roles ...Role) bool {
	return slices.Contains(roles, p.Role)
}

// WithPrincipal stores the authenticated principal on the provided context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the authenticated principal from the context if present.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}
