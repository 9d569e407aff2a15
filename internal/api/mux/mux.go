// Package mux provides support to bind domain level routes
// to the application mux.
package mux

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/api/mid"
	"github.com/ahrav/webscan-armada/internal/api/routes/runs"
	"github.com/ahrav/webscan-armada/internal/api/routes/scan"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
	"github.com/ahrav/webscan-armada/pkg/common/otel"
	"github.com/ahrav/webscan-armada/pkg/web"
)

// Options represent optional parameters.
type Options struct {
	corsOrigin []string
}

// WithCORS provides configuration options for CORS.
func WithCORS(origins []string) func(opts *Options) {
	return func(opts *Options) {
		opts.corsOrigin = origins
	}
}

// Metrics is what the HTTP layer records.
type Metrics interface {
	mid.RequestMetrics
	scan.StreamMetrics
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build   string
	Log     *logger.Logger
	Tracer  trace.Tracer
	Metrics Metrics
	Scans   scan.Service
	Runs    runs.Service
	// Ready reports whether the scan engine can be reached.
	Ready func(ctx context.Context) error
}

// RouteAdder defines behavior that sets the routes to bind for an instance
// of the service.
type RouteAdder interface {
	Add(app *web.App, cfg Config)
}

// WebAPI constructs a http.Handler with all application routes bound.
func WebAPI(cfg Config, routeAdder RouteAdder, options ...func(opts *Options)) http.Handler {
	logger := func(ctx context.Context, msg string, args ...any) {
		cfg.Log.Info(ctx, msg, args...)
	}

	app := web.NewApp(
		logger,
		mid.Errors(cfg.Log),
		mid.Panics(),
	)

	var opts Options
	for _, option := range options {
		option(&opts)
	}

	if len(opts.corsOrigin) > 0 {
		app.EnableCORS(opts.corsOrigin)
	}

	app.Use(
		middleware.RequestID,
		middleware.RealIP,
		otel.Middleware(cfg.Tracer),
		mid.Logger(cfg.Log, cfg.Metrics),
		middleware.Recoverer,
	)

	routeAdder.Add(app, cfg)

	return app
}
