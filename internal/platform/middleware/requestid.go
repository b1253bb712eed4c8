package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"konkurs/pkg/requestcontext"
)

// RequestID assigns each request a UUID (or honors an incoming X-Request-ID)
// and pins the request time so all downstream reads of "now" agree.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}

		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
