package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/backend-pdv/internal/auth"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/ratelimit"
)

var cheapArgon = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type users map[string]auth.Account

func (u users) UserByEmail(_ context.Context, email string) (auth.Account, error) {
	if a, ok := u[email]; ok {
		return a, nil
	}
	return auth.Account{}, auth.ErrUserNotFound
}

func (u users) UserByID(_ context.Context, id string) (auth.Account, error) {
	for _, a := range u {
		if a.ID == id {
			return a, nil
		}
	}
	return auth.Account{}, auth.ErrUserNotFound
}

func newTestRouter(t *testing.T, loginRate string) http.Handler {
	t.Helper()
	hash, err := argon2id.CreateHash("correct horse", cheapArgon)
	require.NoError(t, err)
	accounts := users{
		"vendedora@pdv.test": {ID: "u-1", BranchID: "f-1", Email: "vendedora@pdv.test", PasswordHash: hash, Role: common.RoleSeller, Active: true},
		"admin@pdv.test":     {ID: "u-2", Email: "admin@pdv.test", PasswordHash: hash, Role: common.RoleAdmin, Active: true},
	}
	svc, err := auth.NewService(auth.Config{Users: accounts, Secret: "router-test-secret"})
	require.NoError(t, err)

	lim, err := ratelimit.New(memory.NewStore(), loginRate)
	require.NoError(t, err)

	return routes{
		Logger:   zerolog.Nop(),
		Auth:     svc,
		Login:    &ratelimit.Handler{Limiter: lim, Key: ratelimit.ByClientIP("login:")},
		AuthHTTP: &auth.Handler{Service: svc, AccessCookieName: accessCookie, CSRFCookieName: csrfHeader},
	}.handler()
}

func login(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"correct horse"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Data auth.LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.AccessToken)
	return body.Data.AccessToken
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestOpsEndpoints(t *testing.T) {
	h := newTestRouter(t, "10-M")
	rr := do(h, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/metrics", "").Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestRouter(t, "10-M")
	for _, path := range []string{"/api/v1/products?q=blusa", "/api/v1/carts/c-1", "/api/v1/drawer/closing"} {
		require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, path, "").Code, path)
	}
}

func TestSupervisorRoutesRejectSellers(t *testing.T) {
	h := newTestRouter(t, "10-M")
	token := login(t, h, "vendedora@pdv.test")

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/sales/s-1/reverse"},
		{http.MethodPut, "/api/v1/commission/config"},
		{http.MethodDelete, "/api/v1/commission/config/tiers/0"},
		{http.MethodPut, "/api/v1/goals"},
		{http.MethodGet, "/api/v1/reports/branch"},
		{http.MethodGet, "/api/v1/performance/u-9"},
		{http.MethodPost, "/api/v1/drawer/movements"},
		{http.MethodGet, "/api/v1/audit"},
		{http.MethodGet, "/api/v1/advances"},
		{http.MethodPost, "/api/v1/advances"},
		{http.MethodPut, "/api/v1/advances/a-1"},
		{http.MethodDelete, "/api/v1/advances/a-1"},
		{http.MethodGet, "/api/v1/reports/payouts"},
	} {
		rr := do(h, tc.method, tc.path, token)
		require.Equal(t, http.StatusForbidden, rr.Code, tc.path)
	}
}

func TestAdminWithoutBranchNeedsHeader(t *testing.T) {
	h := newTestRouter(t, "10-M")
	token := login(t, h, "admin@pdv.test")
	rr := do(h, http.MethodGet, "/api/v1/reports/branch", token)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "BRANCH_REQUIRED")
}

func TestLoginIsRateLimited(t *testing.T) {
	h := newTestRouter(t, "1-M")
	login(t, h, "vendedora@pdv.test")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"vendedora@pdv.test","password":"x"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestUnsafeCookieRequestsNeedCSRFToken(t *testing.T) {
	h := newTestRouter(t, "10-M")
	token := login(t, h, "vendedora@pdv.test")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts", nil)
	req.AddCookie(&http.Cookie{Name: accessCookie, Value: token})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "CSRF_FAILED")
}
