package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

// RequestMetrics records per-route request counts and latencies.
type RequestMetrics interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
}

// Logger logs every completed request and records its metrics under the
// matched route pattern.
func Logger(log *logger.Logger, metrics RequestMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				route := r.URL.Path
				if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				elapsed := time.Since(start)

				if metrics != nil {
					metrics.IncRequestsTotal(ctx, r.Method, route, status)
					metrics.ObserveRequestDuration(ctx, r.Method, route, elapsed)
				}

				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"remoteaddr", r.RemoteAddr,
					"request_id", middleware.GetReqID(ctx),
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration", elapsed,
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
