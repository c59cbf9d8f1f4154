package security_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wsplatform/checkout-api/internal/security"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	handler := security.Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true}.Middleware(ok())

	req := httptest.NewRequest(http.MethodGet, "https://example.com", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
	require.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'none'")
	require.Equal(t, "max-age=600; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersHSTSBehindProxy(t *testing.T) {
	handler := security.Headers{Enable: true, EnableHSTS: true}.Middleware(ok())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, "max-age=31536000", rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersNoHSTSOverPlainHTTP(t *testing.T) {
	handler := security.Headers{Enable: true, EnableHSTS: true}.Middleware(ok())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestHeadersDisabled(t *testing.T) {
	handler := security.Headers{}.Middleware(ok())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rr.Header().Get("X-Frame-Options"))
}
