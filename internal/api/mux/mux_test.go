package mux_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/webscan-armada/internal/api/mux"
	"github.com/ahrav/webscan-armada/internal/api/routes"
	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

type stubService struct{}

func (stubService) RunCrawlOnly(context.Context, string) ([]string, error) {
	return []string{"http://testphp.vulnweb.com/"}, nil
}

func (stubService) RunFullScan(context.Context, string) (*scanning.ScanReport, error) {
	return &scanning.ScanReport{}, nil
}

func (stubService) StreamCrawl(context.Context, string) (<-chan scanning.ProgressEvent, <-chan error, error) {
	events := make(chan scanning.ProgressEvent)
	errCh := make(chan error)
	close(events)
	close(errCh)
	return events, errCh, nil
}

func (stubService) RunInjectionScan(context.Context, string) ([]scanning.SqlFinding, error) {
	return nil, nil
}

func (stubService) GetRun(context.Context, uuid.UUID) (*scanning.Run, error) {
	return nil, scanning.ErrRunNotFound
}

func (stubService) ListRuns(context.Context, int, int) ([]*scanning.Run, error) { return nil, nil }

type requestCounter struct{ requests int }

func (c *requestCounter) IncRequestsTotal(context.Context, string, string, int)              { c.requests++ }
func (c *requestCounter) ObserveRequestDuration(context.Context, string, string, time.Duration) {}
func (c *requestCounter) IncStreamsOpened(context.Context)                                   {}
func (c *requestCounter) IncStreamsAborted(context.Context)                                  {}

func newTestHandler(metrics mux.Metrics) http.Handler {
	return mux.WebAPI(mux.Config{
		Build:   "test",
		Log:     logger.New(io.Discard, logger.LevelDebug, "test", nil),
		Tracer:  noop.NewTracerProvider().Tracer("test"),
		Metrics: metrics,
		Scans:   stubService{},
		Runs:    stubService{},
	}, routes.Routes(), mux.WithCORS([]string{"*"}))
}

func TestWebAPI(t *testing.T) {
	metrics := new(requestCounter)
	h := newTestHandler(metrics)

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
	}{
		{name: "hello", method: http.MethodGet, path: "/", wantCode: http.StatusOK},
		{name: "health", method: http.MethodGet, path: "/v1/health", wantCode: http.StatusOK},
		{name: "readiness_without_probe", method: http.MethodGet, path: "/v1/readiness", wantCode: http.StatusOK},
		{name: "crawl", method: http.MethodPost, path: "/spider-scan?target=http://testphp.vulnweb.com", wantCode: http.StatusOK},
		{name: "crawl_wrong_method", method: http.MethodGet, path: "/spider-scan", wantCode: http.StatusMethodNotAllowed},
		{name: "run_not_found", method: http.MethodGet, path: "/v1/runs/" + uuid.NewString(), wantCode: http.StatusNotFound},
		{name: "unknown_route", method: http.MethodGet, path: "/nope", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	assert.Equal(t, len(tests), metrics.requests)
}

func TestWebAPI_CORS(t *testing.T) {
	h := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodOptions, "/spider-scan", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}
