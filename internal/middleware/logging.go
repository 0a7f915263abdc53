package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latticelock/pattern-gateway/internal/config"
)

// LoggingMiddleware emits one access log line per request in the configured
// format: "default" (structured logrus fields), "json" (full entry with
// redacted headers embedded as JSON), or "clf" (Apache common log format).
// Batch codes travel in request bodies, never in paths, so the path itself is
// safe to log; header redaction covers credentials.
func LoggingMiddleware(logger *logrus.Logger, cfg *config.LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Uploads are sized by their body, downloads by what was written.
			bytes := rw.bytesWritten
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				if n, err := strconv.ParseInt(r.Header.Get("Content-Length"), 10, 64); err == nil && n > 0 {
					bytes = n
				}
			}

			entry := createLogEntry(r, rw, time.Since(start), bytes, cfg)

			switch cfg.AccessLogFormat {
			case "json":
				data, err := json.Marshal(entry)
				if err != nil {
					logDefault(logger, entry)
					return
				}
				logger.WithField("json", string(data)).Info("HTTP request")
			case "clf":
				logger.WithField("clf", formatCLF(entry)).Info("HTTP request")
			default:
				logDefault(logger, entry)
			}
		})
	}
}

// responseWriter captures the status code and byte count of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// LogEntry is one access log record.
type LogEntry struct {
	Timestamp  string            `json:"timestamp"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Query      string            `json:"query,omitempty"`
	RemoteAddr string            `json:"remote_addr"`
	UserAgent  string            `json:"user_agent,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Status     int               `json:"status"`
	DurationMs int64             `json:"duration_ms"`
	Bytes      int64             `json:"bytes"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// createLogEntry builds the access record. Headers are only collected for the
// json format, with configured credentials replaced by a redaction marker.
func createLogEntry(r *http.Request, rw *responseWriter, duration time.Duration, bytes int64, cfg *config.LoggingConfig) *LogEntry {
	entry := &LogEntry{
		Timestamp:  time.Now().Format(time.RFC3339),
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		RequestID:  r.Header.Get("X-Request-ID"),
		Status:     rw.statusCode,
		DurationMs: duration.Milliseconds(),
		Bytes:      bytes,
	}

	if cfg.AccessLogFormat == "json" {
		entry.Headers = make(map[string]string, len(r.Header))
		for name, values := range r.Header {
			key := strings.ToLower(name)
			if shouldRedactHeader(key, cfg.RedactHeaders) {
				entry.Headers[key] = "[REDACTED]"
			} else {
				entry.Headers[key] = strings.Join(values, ",")
			}
		}
	}

	return entry
}

// shouldRedactHeader reports whether a header name is on the redaction list.
// Matching is case-insensitive.
func shouldRedactHeader(headerName string, redactHeaders []string) bool {
	name := strings.ToLower(headerName)
	for _, redact := range redactHeaders {
		if strings.ToLower(redact) == name {
			return true
		}
	}
	return false
}

func logDefault(logger *logrus.Logger, entry *LogEntry) {
	fields := logrus.Fields{
		"method":      entry.Method,
		"path":        entry.Path,
		"remote_addr": entry.RemoteAddr,
		"status":      entry.Status,
		"duration_ms": entry.DurationMs,
		"bytes":       entry.Bytes,
	}
	if entry.Query != "" {
		fields["query"] = entry.Query
	}
	if entry.UserAgent != "" {
		fields["user_agent"] = entry.UserAgent
	}
	if entry.RequestID != "" {
		fields["request_id"] = entry.RequestID
	}

	logger.WithFields(fields).Info("HTTP request")
}

// formatCLF renders the entry as an Apache common log format line.
func formatCLF(entry *LogEntry) string {
	target := entry.Path
	if entry.Query != "" {
		target += "?" + entry.Query
	}
	return fmt.Sprintf(`%s - - [%s] "%s %s HTTP/1.1" %d %d`,
		entry.RemoteAddr, entry.Timestamp, entry.Method, target, entry.Status, entry.Bytes)
}
