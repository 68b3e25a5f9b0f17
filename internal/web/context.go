package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvclean/internal/core"
	mw "github.com/JonMunkholm/csvclean/internal/web/middleware"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for history
// records. The IP has already been resolved by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, mw.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
