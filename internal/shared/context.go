package shared

import (
	"net"
	"net/http"
	"strings"
)

// ClientInfo identifies the caller for audit records.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// ClientFromRequest extracts the caller address and user agent. The first
// X-Forwarded-For entry wins over the socket address.
func ClientFromRequest(r *http.Request) ClientInfo {
	return ClientInfo{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
