package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/salesrecon/internal/core"
)

// WithRequestMetadata adds the client IP to ctx for pipeline logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithIPAddress(ctx, clientIP(r))
}

// clientIP returns the request's remote host without its port.
// RemoteAddr has already been resolved by TrustedRealIP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
