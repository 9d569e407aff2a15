package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ahrav/webscan-armada/internal/api/errs"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
	"github.com/ahrav/webscan-armada/pkg/web"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build string
	Log   *logger.Logger
	// Ready reports whether the scan engine can be reached. Nil means always
	// ready.
	Ready func(ctx context.Context) error
}

const readinessTimeout = 5 * time.Second

// Routes binds all the health check endpoints.
func Routes(app *web.App, cfg Config) {
	app.HandlerFunc(http.MethodGet, "", "/", hello)
	app.HandlerFunc(http.MethodGet, "", "/v1/health", check(cfg))
	app.HandlerFunc(http.MethodGet, "", "/v1/readiness", readiness(cfg))
}

// helloResponse is the root liveness payload.
type helloResponse struct {
	Hello string `json:"Hello"`
}

// Encode implements the web.Encoder interface.
func (hr helloResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(hr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// healthResponse represents the response for health check.
type healthResponse struct {
	Status string `json:"status"`
	Build  string `json:"build"`
}

// Encode implements the web.Encoder interface.
func (hr healthResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(hr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// readyResponse represents the response for readiness check.
type readyResponse struct {
	Status string `json:"status"`
}

// Encode implements the web.Encoder interface.
func (rr readyResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func hello(ctx context.Context, r *http.Request) web.Encoder {
	return helloResponse{Hello: "World"}
}

func check(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		return healthResponse{
			Status: "ok",
			Build:  cfg.Build,
		}
	}
}

func readiness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		if cfg.Ready == nil {
			return readyResponse{Status: "ready"}
		}

		ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
		defer cancel()

		if err := cfg.Ready(ctx); err != nil {
			cfg.Log.Warn(ctx, "readiness check failed", "err", err)
			return errs.Newf(errs.Unavailable, "scan engine not ready: %s", err)
		}

		return readyResponse{Status: "ready"}
	}
}
