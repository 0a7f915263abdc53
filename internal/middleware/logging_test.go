package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latticelock/pattern-gateway/internal/config"
)

func runLogged(t *testing.T, cfg *config.LoggingConfig, req *http.Request) string {
	t.Helper()

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	handler := LoggingMiddleware(logger, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), req)
	return buf.String()
}

func TestLoggingMiddleware_DefaultFormat(t *testing.T) {
	cfg := &config.LoggingConfig{AccessLogFormat: "default", RedactHeaders: []string{"authorization"}}
	req := httptest.NewRequest("GET", "/v1/algorithms", nil)

	out := runLogged(t, cfg, req)
	for _, field := range []string{"method", "path", "status", "duration_ms", "bytes"} {
		if !strings.Contains(out, field) {
			t.Errorf("default format output missing field %q: %s", field, out)
		}
	}
}

func TestLoggingMiddleware_JSONFormatRedacts(t *testing.T) {
	cfg := &config.LoggingConfig{AccessLogFormat: "json", RedactHeaders: []string{"authorization", "x-api-key"}}
	req := httptest.NewRequest("GET", "/v1/patterns?batch_code=BATCH-2024-001", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Api-Key", "sensitive-key")

	out := runLogged(t, cfg, req)
	if !strings.Contains(out, `\"json\"`) && !strings.Contains(out, `"json"`) {
		t.Fatalf("expected embedded json entry, got: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected credentials to be redacted: %s", out)
	}
	if strings.Contains(out, "secret-token") || strings.Contains(out, "sensitive-key") {
		t.Errorf("credential values leaked into the log: %s", out)
	}
}

func TestLoggingMiddleware_CLFFormat(t *testing.T) {
	cfg := &config.LoggingConfig{AccessLogFormat: "clf"}
	req := httptest.NewRequest("GET", "/v1/algorithms", nil)

	out := runLogged(t, cfg, req)
	if !strings.Contains(out, "clf") || !strings.Contains(out, "GET /v1/algorithms HTTP/1.1") {
		t.Errorf("expected a CLF line, got: %s", out)
	}
}

func TestResponseWriter(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	if rw.statusCode != http.StatusNotFound {
		t.Errorf("expected captured status 404, got %d", rw.statusCode)
	}

	n, err := rw.Write([]byte("test"))
	if err != nil || n != 4 {
		t.Fatalf("Write returned (%d, %v)", n, err)
	}
	if rw.bytesWritten != 4 {
		t.Errorf("expected 4 bytes counted, got %d", rw.bytesWritten)
	}
}

func TestShouldRedactHeader(t *testing.T) {
	redact := []string{"authorization", "x-api-key"}

	tests := []struct {
		header string
		list   []string
		want   bool
	}{
		{"authorization", redact, true},
		{"x-api-key", redact, true},
		{"content-type", redact, false},
		{"AUTHORIZATION", []string{"authorization"}, true},
		{"user-agent", nil, false},
	}
	for _, tt := range tests {
		if got := shouldRedactHeader(tt.header, tt.list); got != tt.want {
			t.Errorf("shouldRedactHeader(%q, %v) = %v, want %v", tt.header, tt.list, got, tt.want)
		}
	}
}

func TestCreateLogEntry(t *testing.T) {
	cfg := &config.LoggingConfig{
		AccessLogFormat: "json",
		RedactHeaders:   []string{"authorization", "x-api-key"},
	}

	req := httptest.NewRequest("POST", "/v1/patterns/0b6c9d0e?format=full", nil)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("X-Api-Key", "secret-key")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")
	req.RemoteAddr = "127.0.0.1:12345"

	rw := &responseWriter{
		ResponseWriter: httptest.NewRecorder(),
		statusCode:     http.StatusCreated,
		bytesWritten:   1024,
	}

	entry := createLogEntry(req, rw, 150*time.Millisecond, 512, cfg)

	if entry.Method != "POST" || entry.Path != "/v1/patterns/0b6c9d0e" || entry.Query != "format=full" {
		t.Errorf("unexpected request fields: %+v", entry)
	}
	if entry.Status != http.StatusCreated || entry.Bytes != 512 || entry.DurationMs != 150 {
		t.Errorf("unexpected response fields: %+v", entry)
	}
	if entry.RequestID != "req-42" {
		t.Errorf("expected request id req-42, got %s", entry.RequestID)
	}

	if entry.Headers == nil {
		t.Fatal("json format must collect headers")
	}
	if entry.Headers["authorization"] != "[REDACTED]" || entry.Headers["x-api-key"] != "[REDACTED]" {
		t.Error("expected credential headers to be redacted")
	}
	if entry.Headers["content-type"] != "application/json" {
		t.Errorf("content-type should pass through, got %s", entry.Headers["content-type"])
	}
}
