package zap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

const testAPIKey = "s3cr3t"

type countingMetrics struct {
	mu     sync.Mutex
	calls  map[string]int
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{calls: map[string]int{}, errors: map[string]int{}}
}

func (m *countingMetrics) IncEngineCalls(_ context.Context, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
}

func (m *countingMetrics) IncEngineErrors(_ context.Context, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[op]++
}

type recordedRequest struct {
	path   string
	query  map[string]string
	header string
}

// newTestEngine serves canned responses keyed by request path.
func newTestEngine(t *testing.T, responses map[string]func(w http.ResponseWriter)) (*Client, *[]recordedRequest, *countingMetrics) {
	t.Helper()

	var mu sync.Mutex
	var recorded []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		mu.Lock()
		recorded = append(recorded, recordedRequest{path: r.URL.Path, query: q, header: r.Header.Get("X-ZAP-API-Key")})
		mu.Unlock()

		respond, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"code":"no_implementor","message":"No Implementor"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		respond(w)
	}))
	t.Cleanup(srv.Close)

	metrics := newCountingMetrics()
	c, err := NewClient(Config{
		BaseURL:        srv.URL,
		APIKey:         testAPIKey,
		RequestTimeout: 5 * time.Second,
	}, srv.Client(), metrics, noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)

	return c, &recorded, metrics
}

func body(s string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) { _, _ = io.WriteString(w, s) }
}

func status(code int, s string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, s)
	}
}

func mustTarget(t *testing.T) scanning.Target {
	t.Helper()
	target, err := scanning.NewTarget("http://testphp.vulnweb.com")
	require.NoError(t, err)
	return target
}

func TestClient_Crawl(t *testing.T) {
	c, recorded, metrics := newTestEngine(t, map[string]func(http.ResponseWriter){
		"/JSON/spider/action/scan/":  body(`{"scan":"4"}`),
		"/JSON/spider/view/status/":  body(`{"status":"73"}`),
		"/JSON/spider/view/results/": body(`{"results":["http://testphp.vulnweb.com/","http://testphp.vulnweb.com/login.php"]}`),
	})
	ctx := context.Background()
	target := mustTarget(t)

	handle, err := c.LaunchCrawl(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, scanning.ScanHandle("4"), handle)

	pct, err := c.CrawlStatus(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, 73, pct)

	urls, err := c.CrawlResults(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://testphp.vulnweb.com/", "http://testphp.vulnweb.com/login.php"}, urls)

	require.Len(t, *recorded, 3)
	launch := (*recorded)[0]
	assert.Equal(t, "http://testphp.vulnweb.com", launch.query["url"])
	assert.Equal(t, testAPIKey, launch.query["apikey"])
	assert.Equal(t, testAPIKey, launch.header)
	assert.Equal(t, "4", (*recorded)[1].query["scanId"])

	assert.Equal(t, 1, metrics.calls["spider.action.scan"])
	assert.Empty(t, metrics.errors)
}

func TestClient_Ajax(t *testing.T) {
	c, recorded, _ := newTestEngine(t, map[string]func(http.ResponseWriter){
		"/JSON/ajaxSpider/action/scan/": body(`{"Result":"OK"}`),
		"/JSON/ajaxSpider/view/status/": body(`{"status":"running"}`),
		"/JSON/ajaxSpider/view/results/": body(`{"results":[
			{"requestHeader":"GET http://testphp.vulnweb.com/ HTTP/1.1\r\nHost: testphp.vulnweb.com\r\n"},
			{"requestHeader":"POST http://testphp.vulnweb.com/search.php HTTP/1.1\r\n"},
			{"requestHeader":""}
		]}`),
	})
	ctx := context.Background()

	require.NoError(t, c.LaunchAjaxCrawl(ctx, mustTarget(t)))

	st, err := c.AjaxStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, scanning.AjaxStatusRunning, st)

	urls, err := c.AjaxResults(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://testphp.vulnweb.com/", "http://testphp.vulnweb.com/search.php"}, urls)

	last := (*recorded)[len(*recorded)-1]
	assert.Equal(t, "0", last.query["start"])
	assert.Equal(t, "10", last.query["count"])
}

func TestClient_ActiveScanAndCollect(t *testing.T) {
	c, recorded, _ := newTestEngine(t, map[string]func(http.ResponseWriter){
		"/JSON/ascan/action/scan/": body(`{"scan":"2"}`),
		"/JSON/ascan/view/status/": body(`{"status":"100"}`),
		"/JSON/core/view/hosts/":   body(`{"hosts":["testphp.vulnweb.com"]}`),
		"/JSON/core/view/alerts/": body(`{"alerts":[{"id":"9","pluginId":"10021","alert":"X-Content-Type-Options Header Missing",
			"risk":"Low","confidence":"Medium","url":"http://testphp.vulnweb.com/","cweid":"693","wascid":"15",
			"sourceid":"3","messageId":"12","sourceMessageId":1,"tags":{"OWASP_2021_A05":"https://owasp.org/Top10/A05_2021"}}]}`),
	})
	ctx := context.Background()
	target := mustTarget(t)

	handle, err := c.LaunchActiveScan(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, scanning.ScanHandle("2"), handle)

	pct, err := c.ActiveScanStatus(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, 100, pct)

	hosts, err := c.ListHosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"testphp.vulnweb.com"}, hosts)

	alerts, err := c.ListAlerts(ctx, target)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "10021", alerts[0].PluginID)
	assert.Equal(t, "693", alerts[0].CWEID)
	assert.Equal(t, 1, alerts[0].SourceMessageID)
	assert.Contains(t, alerts[0].Tags, "OWASP_2021_A05")

	last := (*recorded)[len(*recorded)-1]
	assert.Equal(t, "http://testphp.vulnweb.com", last.query["baseurl"])
}

func TestClient_EmptyAlerts(t *testing.T) {
	c, _, _ := newTestEngine(t, map[string]func(http.ResponseWriter){
		"/JSON/core/view/alerts/": body(`{"alerts":[]}`),
	})

	alerts, err := c.ListAlerts(context.Background(), mustTarget(t))
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		respond func(w http.ResponseWriter)
		wantErr error
	}{
		{
			name:    "target_rejected",
			respond: status(http.StatusBadRequest, `{"code":"url_not_found","message":"URL Not Found in the Scan Tree"}`),
			wantErr: scanning.ErrInvalidTarget,
		},
		{
			name:    "bad_api_key",
			respond: status(http.StatusBadRequest, `{"code":"bad_api_key","message":"Bad API Key"}`),
			wantErr: scanning.ErrEngineUnavailable,
		},
		{
			name:    "server_error",
			respond: status(http.StatusInternalServerError, `{"code":"internal_error","message":"Internal Error"}`),
			wantErr: scanning.ErrEngineUnavailable,
		},
		{
			name:    "undecodable_body",
			respond: body(`<html>proxy error</html>`),
			wantErr: scanning.ErrEngineUnavailable,
		},
		{
			name:    "non_numeric_status",
			respond: body(`{"status":"does_not_exist"}`),
			wantErr: scanning.ErrEngineUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, metrics := newTestEngine(t, map[string]func(http.ResponseWriter){
				"/JSON/spider/view/status/": tt.respond,
			})

			_, err := c.CrawlStatus(context.Background(), scanning.ScanHandle("0"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.name != "non_numeric_status" {
				assert.Equal(t, 1, metrics.errors["spider.view.status"])
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: addr, RequestTimeout: time.Second}, nil, newCountingMetrics(), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)

	_, err = c.ListHosts(context.Background())
	assert.ErrorIs(t, err, scanning.ErrEngineUnavailable)
	assert.True(t, IsUnavailable(err))
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "localhost"}, nil, newCountingMetrics(), noop.NewTracerProvider().Tracer("test"))
	assert.Error(t, err)
}

func TestConnectWithRetry(t *testing.T) {
	c, _, _ := newTestEngine(t, map[string]func(http.ResponseWriter){
		"/JSON/core/view/version/": body(`{"version":"2.14.0"}`),
	})

	version, err := ConnectWithRetry(context.Background(), c, time.Second, logger.New(io.Discard, logger.LevelDebug, "test", nil))
	require.NoError(t, err)
	assert.Equal(t, "2.14.0", version)
}
