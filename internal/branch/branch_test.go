package branch_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
)

func requestAs(p common.Principal, header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set(branch.DefaultHeader, header)
	}
	return req.WithContext(common.WithPrincipal(req.Context(), p))
}

func TestResolveUsesPrincipalBranch(t *testing.T) {
	r := branch.NewResolver("")
	got := r.Resolve(requestAs(common.Principal{UserID: "u1", Role: common.RoleSeller, BranchID: "f1"}, ""))
	if got != "f1" {
		t.Fatalf("expected f1, got %q", got)
	}
}

func TestResolveIgnoresHeaderForNonAdmin(t *testing.T) {
	r := branch.NewResolver("")
	got := r.Resolve(requestAs(common.Principal{UserID: "u1", Role: common.RoleManager, BranchID: "f1"}, "f2"))
	if got != "f1" {
		t.Fatalf("manager must stay on own branch, got %q", got)
	}
}

func TestResolveAdminOverride(t *testing.T) {
	r := branch.NewResolver("")
	got := r.Resolve(requestAs(common.Principal{UserID: "a", Role: common.RoleAdmin, BranchID: "f1"}, "f9"))
	if got != "f9" {
		t.Fatalf("expected admin override f9, got %q", got)
	}
}

func TestMiddlewareStoresBranch(t *testing.T) {
	r := branch.NewResolver("")
	var seen string
	h := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen, _ = branch.FromContext(req.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), requestAs(common.Principal{UserID: "u", Role: common.RoleSeller, BranchID: "f3"}, ""))
	if seen != "f3" {
		t.Fatalf("expected f3 in context, got %q", seen)
	}
}

func TestPrefixKey(t *testing.T) {
	if got := branch.PrefixKey("f1", "cart:1"); got != "filial:f1:cart:1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := branch.PrefixKey("", "cart:1"); got != "cart:1" {
		t.Fatalf("unexpected key %q", got)
	}
}
