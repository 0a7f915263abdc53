package api

import (
	"net"
	"net/http"
	"strings"
)

// getClientIP resolves the originating client address, preferring proxy
// headers over the socket peer.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop in the chain is the original client.
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// getRequestID returns the caller-supplied request ID, if any.
func getRequestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}
