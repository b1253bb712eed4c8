// Package httptransport assembles the chi router: public aggregation
// endpoints, admin endpoints behind the token guard, health, and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"konkurs/internal/aggregate/handler"
	"konkurs/internal/platform/middleware"
	"konkurs/pkg/platform/httputil"
)

// HealthChecker reports the health of one backing dependency.
type HealthChecker struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter wires all endpoints.
func NewRouter(h *handler.Handler, adminToken string, logger *slog.Logger, checkers []HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))

	h.Register(r)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(admin)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(checkers))

	return r
}

// healthHandler answers 200 when every configured dependency responds, 503
// otherwise. Dependencies that are not configured simply have no checker.
func healthHandler(checkers []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := map[string]string{}
		for _, c := range checkers {
			if err := c.Check(ctx); err != nil {
				deps[c.Name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[c.Name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		httputil.WriteJSON(w, status, body)
	}
}
