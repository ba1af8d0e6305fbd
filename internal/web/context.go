package web

import (
	"net/http"

	"github.com/JonMunkholm/transitwatch/internal/importer"
	mw "github.com/JonMunkholm/transitwatch/internal/web/middleware"
)

// withRequestMeta adds the client IP, User-Agent, and API key label to the
// request context for audit logging.
func withRequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := importer.WithRequestMeta(r.Context(), importer.RequestMeta{
			IPAddress: mw.ClientIP(r), // already resolved by TrustedRealIP
			UserAgent: r.UserAgent(),
			Actor:     mw.ActorFrom(r.Context()),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
