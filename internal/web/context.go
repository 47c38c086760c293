package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/eddb-ingest/internal/core"
)

// withRequestMetadata adds the client IP and User-Agent to ctx for the audit
// log. RemoteAddr has already been resolved by TrustedRealIP.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ctx = core.ContextWithIPAddress(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

// principal returns the caller resolved by BasicAuth. Routes behind BasicAuth
// always have one; the zero Principal would be treated as admin, so a missing
// one is reported as unauthenticated instead.
func principal(r *http.Request) (core.Principal, bool) {
	return core.PrincipalFromContext(r.Context())
}
