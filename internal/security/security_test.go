package security

import (
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pdv/internal/common"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestHeadersMiddleware(t *testing.T) {
	handler := Headers{EnableHSTS: true}.Middleware(http.HandlerFunc(ok))
	req := httptest.NewRequest(http.MethodGet, "https://pdv.example/api/v1/sales/1", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	require.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://pdv.example/", nil))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestCORSAllowsListedOrigins(t *testing.T) {
	handler := CORS("https://till.example, https://admin.example")(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/carts/1/checkout", nil)
	req.Header.Set("Origin", "https://till.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", common.IdempotencyHeader)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, "https://till.example", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sales/1", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 10}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		captured = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hello", captured)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too large body")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	var body map[string]common.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "PAYLOAD_TOO_LARGE", body["error"].Code)

	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader("streamed beyond the limit")))
	req.ContentLength = -1
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestCSRFOnlyGuardsCookieSessions(t *testing.T) {
	handler := CSRF{SessionCookie: "pdv_token"}.Middleware(http.HandlerFunc(ok))

	bearer := httptest.NewRequest(http.MethodPost, "/api/v1/carts", nil)
	bearer.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, bearer)
	require.Equal(t, http.StatusOK, rr.Code)

	cookieOnly := httptest.NewRequest(http.MethodPost, "/api/v1/carts", nil)
	cookieOnly.AddCookie(&http.Cookie{Name: "pdv_token", Value: "abc"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, cookieOnly)
	require.Equal(t, http.StatusForbidden, rr.Code)

	matched := httptest.NewRequest(http.MethodPost, "/api/v1/carts", nil)
	matched.AddCookie(&http.Cookie{Name: "pdv_token", Value: "abc"})
	matched.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "t0k3n"})
	matched.Header.Set("X-CSRF-Token", "t0k3n")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, matched)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sales/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
