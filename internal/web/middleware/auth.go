package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
)

type contextKey string

const ctxKeyActor contextKey = "api_key_actor"

// ActorFrom returns the label of the API key that authenticated the request,
// or "" when auth is disabled.
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(ctxKeyActor).(string)
	return actor
}

// APIKeyAuth returns middleware that validates the X-API-Key header against
// keys, a map of key to label. The matching label is stored on the request
// context for the audit trail.
// If required is false, all requests pass through.
// If required is true but no keys are configured, all requests are rejected.
func APIKeyAuth(required bool, keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				jsonError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			label, ok := lookupAPIKey(apiKey, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				jsonError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyActor, label)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// lookupAPIKey finds the label of key. Every configured key is compared in
// constant time, so timing does not reveal which key (if any) matched.
func lookupAPIKey(key string, keys map[string]string) (string, bool) {
	var label string
	found := 0
	for validKey, l := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			label = l
			found = 1
		}
	}
	return label, found == 1
}

func jsonError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
