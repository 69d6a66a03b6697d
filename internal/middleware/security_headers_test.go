package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nbenslimane/assurid/internal/middleware"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders_AlwaysSet(t *testing.T) {
	handler := middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: "development"})(okHandler())

	req := httptest.NewRequest("GET", "/auth/login", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_HSTSOnlyOverTLSInProduction(t *testing.T) {
	handler := middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: "production"})(okHandler())

	req := httptest.NewRequest("GET", "/auth/login", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")

	// Plain HTTP even in production gets no HSTS header.
	req = httptest.NewRequest("GET", "/auth/login", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
