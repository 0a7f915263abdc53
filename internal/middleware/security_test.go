package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func applySecurityHeaders(t *testing.T, path string, withTLS bool) *httptest.ResponseRecorder {
	t.Helper()
	handler := SecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", path, nil)
	if withTLS {
		req.TLS = &tls.ConnectionState{}
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rr := applySecurityHeaders(t, "/v1/patterns", false)

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("header %s: expected %q, got %q", header, want, got)
		}
	}

	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be set on plain HTTP")
	}
}

func TestSecurityHeadersMiddleware_TLS(t *testing.T) {
	rr := applySecurityHeaders(t, "/v1/patterns", true)
	if rr.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS must be set on TLS connections")
	}
}

func TestSecurityHeadersMiddleware_NonAPIPathCacheable(t *testing.T) {
	rr := applySecurityHeaders(t, "/health", false)
	if rr.Header().Get("Cache-Control") == "no-store" {
		t.Error("probe endpoints should not be marked no-store")
	}
}

func TestRateLimiter(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	limiter := NewRateLimiter(5, time.Second, logger)
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		if !limiter.Allow("printer-a") {
			t.Fatalf("request %d within the limit was denied", i+1)
		}
	}
	if limiter.Allow("printer-a") {
		t.Error("request over the limit was allowed")
	}

	// Limits are per client.
	if !limiter.Allow("printer-b") {
		t.Error("a different client must have its own budget")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	limiter := NewRateLimiter(3, 100*time.Millisecond, logger)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("printer-a")
	}
	if limiter.Allow("printer-a") {
		t.Error("expected denial before the window resets")
	}

	time.Sleep(150 * time.Millisecond)

	if !limiter.Allow("printer-a") {
		t.Error("expected a fresh budget after the window reset")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	limiter := NewRateLimiter(2, time.Second, logger)
	defer limiter.Stop()

	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/v1/patterns", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got status %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rate_limited") {
		t.Errorf("expected JSON error envelope, got %q", rr.Body.String())
	}
}

func TestGetClientKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/patterns", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	if key := getClientKey(req); key != "127.0.0.1:12345" {
		t.Errorf("expected remote addr key, got %s", key)
	}

	req.Header.Set("X-Forwarded-For", "192.168.1.1")
	if key := getClientKey(req); key != "192.168.1.1" {
		t.Errorf("expected forwarded-for key, got %s", key)
	}
}
