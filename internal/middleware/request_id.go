package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/quantopian/pgcontents/internal/httputil"
)

// RequestID tags every request with an id for log correlation. An id set by
// an upstream proxy is kept, otherwise a fresh one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, httputil.WithRequestID(r, id))
	})
}
