package web

import (
	"net"
	"net/http"

	"github.com/JonMunkholm/datamakelaar/internal/core"
)

// withRequestMeta adds the caller's IP and User-Agent to the request
// context for audit logging.
func withRequestMeta(r *http.Request) *http.Request {
	ctx := core.WithRequestMeta(r.Context(), core.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	return r.WithContext(ctx)
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already replaced for proxied requests.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
