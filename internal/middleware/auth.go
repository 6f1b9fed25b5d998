package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantopian/pgcontents/internal/auth"
	"github.com/quantopian/pgcontents/internal/httputil"
)

// Auth resolves the requesting user and stores their id in the request
// context. With a verifier, requests must carry a Bearer token whose subject
// claim names the user. Without one the X-Forwarded-User header is trusted,
// which is only acceptable behind an authenticating proxy or in development.
func Auth(verifier auth.JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health probes carry no credentials
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := resolveUser(verifier, r)
			if !ok {
				httputil.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			logger.Debug("request authenticated", "user_id", userID, "path", r.URL.Path)
			next.ServeHTTP(w, httputil.WithUserID(r, userID))
		})
	}
}

func resolveUser(verifier auth.JWTVerifier, r *http.Request) (string, bool) {
	if verifier == nil {
		userID := r.Header.Get("X-Forwarded-User")
		return userID, userID != ""
	}

	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}

	claims, err := verifier.VerifyToken(token)
	if err != nil {
		return "", false
	}
	return claims.UserID(), true
}
