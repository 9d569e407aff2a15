package scan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
	"github.com/ahrav/webscan-armada/pkg/web"
)

const testTarget = "http://testphp.vulnweb.com"

type mockService struct{ mock.Mock }

func (m *mockService) RunCrawlOnly(ctx context.Context, target string) ([]string, error) {
	args := m.Called(ctx, target)
	urls, _ := args.Get(0).([]string)
	return urls, args.Error(1)
}

func (m *mockService) RunFullScan(ctx context.Context, target string) (*scanning.ScanReport, error) {
	args := m.Called(ctx, target)
	report, _ := args.Get(0).(*scanning.ScanReport)
	return report, args.Error(1)
}

func (m *mockService) StreamCrawl(ctx context.Context, target string) (<-chan scanning.ProgressEvent, <-chan error, error) {
	args := m.Called(ctx, target)
	events, _ := args.Get(0).(<-chan scanning.ProgressEvent)
	errCh, _ := args.Get(1).(<-chan error)
	return events, errCh, args.Error(2)
}

func (m *mockService) RunInjectionScan(ctx context.Context, target string) ([]scanning.SqlFinding, error) {
	args := m.Called(ctx, target)
	findings, _ := args.Get(0).([]scanning.SqlFinding)
	return findings, args.Error(1)
}

type countingMetrics struct{ opened, aborted int }

func (c *countingMetrics) IncStreamsOpened(context.Context)  { c.opened++ }
func (c *countingMetrics) IncStreamsAborted(context.Context) { c.aborted++ }

func newTestApp(svc Service, metrics StreamMetrics) *web.App {
	app := web.NewApp(func(context.Context, string, ...any) {})
	Routes(app, Config{
		Log:     logger.New(io.Discard, logger.LevelDebug, "test", nil),
		Service: svc,
		Metrics: metrics,
	})
	return app
}

func do(app http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	return rec
}

// streamOf replays events and then err on fresh channels.
func streamOf(err error, events ...scanning.ProgressEvent) (<-chan scanning.ProgressEvent, <-chan error) {
	out := make(chan scanning.ProgressEvent, len(events))
	errCh := make(chan error, 1)
	for _, e := range events {
		out <- e
	}
	close(out)
	if err != nil {
		errCh <- err
	}
	close(errCh)
	return out, errCh
}

func TestSpiderScan(t *testing.T) {
	svc := new(mockService)
	svc.On("RunCrawlOnly", mock.Anything, testTarget).
		Return([]string{testTarget + "/", testTarget + "/login.php"}, nil)

	rec := do(newTestApp(svc, nil), "/spider-scan?target="+testTarget)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, testTarget+"/\n"+testTarget+"/login.php", rec.Body.String())
	svc.AssertExpectations(t)
}

func TestSpiderScan_DetachedFromClient(t *testing.T) {
	svc := new(mockService)
	svc.On("RunCrawlOnly", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Done() == nil
	}), testTarget).Return([]string{testTarget + "/"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/spider-scan?target="+testTarget, nil).WithContext(ctx)

	newTestApp(svc, nil).ServeHTTP(httptest.NewRecorder(), req)
	svc.AssertExpectations(t)
}

func TestFullScan(t *testing.T) {
	tests := []struct {
		name     string
		report   *scanning.ScanReport
		err      error
		wantCode int
		wantBody string
	}{
		{
			name: "alerts",
			report: &scanning.ScanReport{Alerts: []scanning.Alert{{
				ID: "1", PluginID: "40018", Alert: "SQL Injection", Risk: "High", URL: testTarget + "/artists.php",
			}}},
			wantCode: http.StatusOK,
		},
		{
			name:     "no_alerts",
			report:   &scanning.ScanReport{},
			wantCode: http.StatusOK,
			wantBody: `[]`,
		},
		{
			name:     "engine_unavailable",
			err:      fmt.Errorf("spider scan: %w", scanning.ErrEngineUnavailable),
			wantCode: http.StatusBadGateway,
			wantBody: `{"code":"engine_unavailable","message":"spider scan: scanning engine unavailable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("RunFullScan", mock.Anything, testTarget).Return(tt.report, tt.err)

			rec := do(newTestApp(svc, nil), "/scan?target="+testTarget)
			assert.Equal(t, tt.wantCode, rec.Code)

			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
				return
			}
			assert.Contains(t, rec.Body.String(), `"pluginId":"40018"`)
			assert.Contains(t, rec.Body.String(), `"risk":"High"`)
		})
	}
}

func TestSqlmap(t *testing.T) {
	tests := []struct {
		name     string
		findings []scanning.SqlFinding
		err      error
		wantCode int
		wantBody string
	}{
		{
			name: "findings",
			findings: []scanning.SqlFinding{{
				Type:    "boolean-based blind",
				Title:   "AND boolean-based blind - WHERE or HAVING clause",
				Payload: "artist=1 AND 5212=5212",
			}},
			wantCode: http.StatusOK,
			wantBody: `[{"type":"boolean-based blind","title":"AND boolean-based blind - WHERE or HAVING clause","payload":"artist=1 AND 5212=5212"}]`,
		},
		{
			name:     "malformed_report",
			err:      fmt.Errorf("parse report: %w", scanning.ErrMalformedReport),
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "subprocess_failure",
			err:      fmt.Errorf("%w: exit code 1", scanning.ErrSubprocessFailure),
			wantCode: http.StatusBadGateway,
		},
		{
			name:     "invalid_target",
			err:      fmt.Errorf("%w: unsupported scheme", scanning.ErrInvalidTarget),
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("RunInjectionScan", mock.Anything, testTarget).Return(tt.findings, tt.err)

			rec := do(newTestApp(svc, nil), "/sqlmap?target="+testTarget)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestMissingTarget(t *testing.T) {
	for _, path := range []string{"/spider-scan", "/scan", "/sqlmap", "/spider-scan-stream"} {
		t.Run(path, func(t *testing.T) {
			svc := new(mockService)
			rec := do(newTestApp(svc, nil), path+"?target=%20")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"invalid_argument"`)
			svc.AssertNotCalled(t, "RunCrawlOnly", mock.Anything, mock.Anything)
			svc.AssertNotCalled(t, "StreamCrawl", mock.Anything, mock.Anything)
		})
	}
}

func TestSpiderScanStream(t *testing.T) {
	events, errCh := streamOf(nil,
		scanning.ProgressEvent{Name: scanning.EventSpiderProgress, Data: "0"},
		scanning.ProgressEvent{Name: scanning.EventSpiderProgress, Data: "50"},
		scanning.ProgressEvent{Name: scanning.EventSpiderComplete, Data: "Spider has completed!"},
		scanning.ProgressEvent{Name: scanning.EventSpiderResults, Data: testTarget + "/\n" + testTarget + "/login.php"},
	)
	svc := new(mockService)
	svc.On("StreamCrawl", mock.Anything, testTarget).Return(events, errCh, nil)
	metrics := new(countingMetrics)

	rec := do(newTestApp(svc, metrics), "/spider-scan-stream?target="+testTarget)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"event: spiderProgress\ndata: 0\n\n"+
			"event: spiderProgress\ndata: 50\n\n"+
			"event: spiderComplete\ndata: Spider has completed!\n\n"+
			"event: spiderResults\ndata: "+testTarget+"/\ndata: "+testTarget+"/login.php\n\n",
		rec.Body.String())
	assert.Equal(t, 1, metrics.opened)
	assert.Zero(t, metrics.aborted)
}

func TestSpiderScanStream_EngineFailure(t *testing.T) {
	events, errCh := streamOf(
		fmt.Errorf("spider status: %w", scanning.ErrEngineUnavailable),
		scanning.ProgressEvent{Name: scanning.EventSpiderProgress, Data: "10"},
	)
	svc := new(mockService)
	svc.On("StreamCrawl", mock.Anything, testTarget).Return(events, errCh, nil)
	metrics := new(countingMetrics)

	rec := do(newTestApp(svc, metrics), "/spider-scan-stream?target="+testTarget)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"event: spiderProgress\ndata: 10\n\n"+
			"event: spiderError\ndata: spider status: scanning engine unavailable\n\n",
		rec.Body.String())
	assert.Equal(t, 1, metrics.aborted)
}

func TestSpiderScanStream_InvalidTarget(t *testing.T) {
	svc := new(mockService)
	svc.On("StreamCrawl", mock.Anything, "ftp://example.com").
		Return(nil, nil, fmt.Errorf("%w: unsupported scheme", scanning.ErrInvalidTarget))

	rec := do(newTestApp(svc, nil), "/spider-scan-stream?target=ftp://example.com")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestSpiderScanStream_ClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events, errCh := streamOf(context.Canceled)
	svc := new(mockService)
	svc.On("StreamCrawl", mock.Anything, testTarget).
		Run(func(mock.Arguments) { cancel() }).
		Return(events, errCh, nil)
	metrics := new(countingMetrics)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/spider-scan-stream?target="+testTarget, nil).WithContext(ctx)
	newTestApp(svc, metrics).ServeHTTP(rec, req)

	assert.NotContains(t, rec.Body.String(), "spiderError")
	assert.Equal(t, 1, metrics.aborted)
}
