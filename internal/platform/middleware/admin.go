package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "konkurs/pkg/domain-errors"
	"konkurs/pkg/platform/httputil"
	"konkurs/pkg/requestcontext"
)

// RequireAdminToken guards operational endpoints behind a static token passed
// in X-Admin-Token. An empty configured token disables the endpoints entirely.
func RequireAdminToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-Admin-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.WarnContext(r.Context(), "admin token rejected",
					"request_id", requestcontext.RequestID(r.Context()),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
