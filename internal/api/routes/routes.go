package routes

import (
	"github.com/ahrav/webscan-armada/internal/api/mux"
	"github.com/ahrav/webscan-armada/internal/api/routes/health"
	"github.com/ahrav/webscan-armada/internal/api/routes/runs"
	"github.com/ahrav/webscan-armada/internal/api/routes/scan"
	"github.com/ahrav/webscan-armada/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	// Health check routes
	health.Routes(app, health.Config{
		Build: cfg.Build,
		Log:   cfg.Log,
		Ready: cfg.Ready,
	})

	// Scan routes
	var streamMetrics scan.StreamMetrics
	if cfg.Metrics != nil {
		streamMetrics = cfg.Metrics
	}
	scan.Routes(app, scan.Config{
		Log:     cfg.Log,
		Service: cfg.Scans,
		Metrics: streamMetrics,
	})

	// Run history routes
	runs.Routes(app, runs.Config{
		Log:     cfg.Log,
		Service: cfg.Runs,
	})
}
