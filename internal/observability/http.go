package observability

import (
	"net"
	"net/http"
	"strings"
)

// Browsers cannot set headers on websocket handshakes, so the identifiers below also
// accept query parameters.

func DeviceIDFromRequest(r *http.Request) string {
	return headerOrQuery(r, "X-Device-Id", "device_id")
}

func RequestIDFromRequest(r *http.Request) string {
	return headerOrQuery(r, "X-Request-Id", "request_id")
}

// IPFromRequest prefers the first X-Forwarded-For hop, then X-Real-Ip, then the peer
// address.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func headerOrQuery(r *http.Request, header, param string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return r.URL.Query().Get(param)
}
