// Package scan binds the scanning endpoints: blocking crawl, full scan and
// injection scan, plus the streamed crawl.
package scan

import (
	"context"
	"net/http"
	"strings"

	"github.com/ahrav/webscan-armada/internal/api/errs"
	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
	"github.com/ahrav/webscan-armada/pkg/web"
)

// Service is the orchestration surface the handlers drive.
type Service interface {
	RunCrawlOnly(ctx context.Context, target string) ([]string, error)
	RunFullScan(ctx context.Context, target string) (*scanning.ScanReport, error)
	StreamCrawl(ctx context.Context, target string) (<-chan scanning.ProgressEvent, <-chan error, error)
	RunInjectionScan(ctx context.Context, target string) ([]scanning.SqlFinding, error)
}

// StreamMetrics counts streamed crawls.
type StreamMetrics interface {
	IncStreamsOpened(ctx context.Context)
	IncStreamsAborted(ctx context.Context)
}

// Config contains the dependencies needed by the scan handlers.
type Config struct {
	Log     *logger.Logger
	Service Service
	Metrics StreamMetrics
}

// Routes binds all the scan endpoints.
func Routes(app *web.App, cfg Config) {
	app.HandlerFunc(http.MethodPost, "", "/spider-scan", spiderScan(cfg))
	app.HandlerFunc(http.MethodPost, "", "/scan", fullScan(cfg))
	app.HandlerFunc(http.MethodPost, "", "/sqlmap", sqlmap(cfg))
	app.RawHandler(http.MethodPost, "", "/spider-scan-stream", spiderScanStream(cfg))
}

// targetQuery is the single parameter every scan endpoint takes.
type targetQuery struct {
	Target string `query:"target" validate:"required"`
}

func parseTarget(r *http.Request) (string, *errs.Error) {
	q := targetQuery{Target: strings.TrimSpace(r.URL.Query().Get("target"))}
	if err := errs.Check(q); err != nil {
		return "", errs.New(errs.InvalidArgument, err)
	}
	return q.Target, nil
}

// Blocking scans keep running after the client goes away so that every
// started run is recorded with its outcome.

func spiderScan(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		target, apiErr := parseTarget(r)
		if apiErr != nil {
			return apiErr
		}

		urls, err := cfg.Service.RunCrawlOnly(context.WithoutCancel(ctx), target)
		if err != nil {
			return errs.FromDomain(err)
		}

		return web.Text(strings.Join(urls, "\n"))
	}
}

func fullScan(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		target, apiErr := parseTarget(r)
		if apiErr != nil {
			return apiErr
		}

		report, err := cfg.Service.RunFullScan(context.WithoutCancel(ctx), target)
		if err != nil {
			return errs.FromDomain(err)
		}

		alerts := report.Alerts
		if alerts == nil {
			alerts = []scanning.Alert{}
		}
		return web.JSON{Value: alerts}
	}
}

func sqlmap(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		target, apiErr := parseTarget(r)
		if apiErr != nil {
			return apiErr
		}

		findings, err := cfg.Service.RunInjectionScan(context.WithoutCancel(ctx), target)
		if err != nil {
			return errs.FromDomain(err)
		}

		return web.JSON{Value: findings}
	}
}

// spiderScanStream relays crawl progress as server-sent events. Unlike the
// blocking scans it stops when the client disconnects.
func spiderScanStream(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		target, apiErr := parseTarget(r)
		if apiErr != nil {
			respondError(ctx, cfg, w, apiErr)
			return
		}

		events, errCh, err := cfg.Service.StreamCrawl(ctx, target)
		if err != nil {
			respondError(ctx, cfg, w, errs.FromDomain(err))
			return
		}
		if cfg.Metrics != nil {
			cfg.Metrics.IncStreamsOpened(ctx)
		}

		stream := web.NewEventStream(w)

		var writeErr error
		for evt := range events {
			if writeErr != nil {
				continue
			}
			writeErr = stream.Send(evt.Name, evt.Data)
		}

		err = <-errCh
		if err == nil && writeErr == nil {
			return
		}

		if cfg.Metrics != nil {
			cfg.Metrics.IncStreamsAborted(ctx)
		}
		if ctx.Err() != nil || writeErr != nil {
			cfg.Log.Info(ctx, "crawl stream closed by client", "target", target)
			return
		}

		cfg.Log.Error(ctx, "crawl stream failed", "target", target, "err", err)
		if sendErr := stream.Send(scanning.EventSpiderError, err.Error()); sendErr != nil {
			cfg.Log.Warn(ctx, "failed to send stream error event", "err", sendErr)
		}
	}
}

func respondError(ctx context.Context, cfg Config, w http.ResponseWriter, apiErr *errs.Error) {
	cfg.Log.Info(ctx, "request rejected", "code", apiErr.Code.Value(), "err", apiErr.Message)
	if err := web.Respond(ctx, w, apiErr); err != nil {
		cfg.Log.Error(ctx, "web-respond", "err", err)
	}
}
