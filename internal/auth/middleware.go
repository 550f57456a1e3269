package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// SessionCookie is the cookie carrying the session token for browser clients.
const SessionCookie = "lumen_session"

// Middleware resolves the caller's identity from a Bearer header or the
// session cookie and attaches it to the request context. It never rejects:
// handlers that require an identity check the context themselves, so public
// endpoints (the feed, the feed stream) stay reachable without credentials.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil || !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := service.ValidateToken(token)
			if err != nil {
				if logger != nil {
					logger.Debug("session token rejected", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireIdentity wraps a handler and rejects requests without an
// authenticated identity in context.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
