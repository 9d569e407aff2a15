// Package zap adapts the OWASP ZAP JSON API to the scanning.Engine interface.
package zap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common"
)

// Config holds the engine endpoint and credentials.
type Config struct {
	// BaseURL is the engine's API root, e.g. http://127.0.0.1:8080.
	BaseURL string
	// APIKey authenticates every call.
	APIKey string
	// RequestTimeout bounds a single API call.
	RequestTimeout time.Duration
	// RequestsPerSecond limits the call rate. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// EngineMetrics records per-operation call and error counts.
type EngineMetrics interface {
	IncEngineCalls(ctx context.Context, operation string)
	IncEngineErrors(ctx context.Context, operation string)
}

// Client is a scanning.Engine backed by the ZAP JSON API. It performs exactly
// one HTTP request per method call and never retries.
type Client struct {
	baseURL     *url.URL
	apiKey      string
	httpClient  *http.Client
	rateLimiter *common.RateLimiter

	metrics EngineMetrics
	tracer  trace.Tracer
}

var _ scanning.Engine = (*Client)(nil)

// NewClient creates a Client for cfg. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, metrics EngineMetrics, tracer trace.Tracer) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid engine base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid engine base url %q", cfg.BaseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		httpClient:  httpClient,
		rateLimiter: common.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		metrics:     metrics,
		tracer:      tracer,
	}, nil
}

type scanResponse struct {
	Scan string `json:"scan"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type urlsResponse struct {
	Results []string `json:"results"`
}

type ajaxResultsResponse struct {
	Results []struct {
		RequestHeader string `json:"requestHeader"`
	} `json:"results"`
}

type hostsResponse struct {
	Hosts []string `json:"hosts"`
}

type alertsResponse struct {
	Alerts []scanning.Alert `json:"alerts"`
}

type versionResponse struct {
	Version string `json:"version"`
}

// apiError is the body the engine returns with non-2xx responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Engine error codes caused by the target rather than the engine.
var targetErrorCodes = map[string]struct{}{
	"url_not_found":      {},
	"url_not_in_context": {},
	"illegal_parameter":  {},
	"missing_parameter":  {},
	"bad_format":         {},
}

// LaunchCrawl implements scanning.Engine.
func (c *Client) LaunchCrawl(ctx context.Context, target scanning.Target) (scanning.ScanHandle, error) {
	var resp scanResponse
	if err := c.call(ctx, "spider/action/scan", url.Values{"url": {target.String()}}, &resp); err != nil {
		return "", err
	}
	return scanning.ScanHandle(resp.Scan), nil
}

// CrawlStatus implements scanning.Engine.
func (c *Client) CrawlStatus(ctx context.Context, h scanning.ScanHandle) (int, error) {
	var resp statusResponse
	if err := c.call(ctx, "spider/view/status", url.Values{"scanId": {h.String()}}, &resp); err != nil {
		return 0, err
	}
	return parsePercent(resp.Status)
}

// CrawlResults implements scanning.Engine.
func (c *Client) CrawlResults(ctx context.Context, h scanning.ScanHandle) ([]string, error) {
	var resp urlsResponse
	if err := c.call(ctx, "spider/view/results", url.Values{"scanId": {h.String()}}, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Results), nil
}

// LaunchAjaxCrawl implements scanning.Engine.
func (c *Client) LaunchAjaxCrawl(ctx context.Context, target scanning.Target) error {
	return c.call(ctx, "ajaxSpider/action/scan", url.Values{"url": {target.String()}}, nil)
}

// AjaxStatus implements scanning.Engine.
func (c *Client) AjaxStatus(ctx context.Context) (scanning.AjaxStatus, error) {
	var resp statusResponse
	if err := c.call(ctx, "ajaxSpider/view/status", nil, &resp); err != nil {
		return "", err
	}
	return scanning.ParseAjaxStatus(resp.Status), nil
}

// AjaxResults implements scanning.Engine. The engine returns full request
// records; only the request URL of each is kept.
func (c *Client) AjaxResults(ctx context.Context, offset, count int) ([]string, error) {
	params := url.Values{
		"start": {strconv.Itoa(offset)},
		"count": {strconv.Itoa(count)},
	}
	var resp ajaxResultsResponse
	if err := c.call(ctx, "ajaxSpider/view/results", params, &resp); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if u := requestURL(r.RequestHeader); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// LaunchActiveScan implements scanning.Engine.
func (c *Client) LaunchActiveScan(ctx context.Context, target scanning.Target) (scanning.ScanHandle, error) {
	var resp scanResponse
	if err := c.call(ctx, "ascan/action/scan", url.Values{"url": {target.String()}}, &resp); err != nil {
		return "", err
	}
	return scanning.ScanHandle(resp.Scan), nil
}

// ActiveScanStatus implements scanning.Engine.
func (c *Client) ActiveScanStatus(ctx context.Context, h scanning.ScanHandle) (int, error) {
	var resp statusResponse
	if err := c.call(ctx, "ascan/view/status", url.Values{"scanId": {h.String()}}, &resp); err != nil {
		return 0, err
	}
	return parsePercent(resp.Status)
}

// ListHosts implements scanning.Engine.
func (c *Client) ListHosts(ctx context.Context) ([]string, error) {
	var resp hostsResponse
	if err := c.call(ctx, "core/view/hosts", nil, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Hosts), nil
}

// ListAlerts implements scanning.Engine.
func (c *Client) ListAlerts(ctx context.Context, target scanning.Target) ([]scanning.Alert, error) {
	var resp alertsResponse
	if err := c.call(ctx, "core/view/alerts", url.Values{"baseurl": {target.String()}}, &resp); err != nil {
		return nil, err
	}
	if resp.Alerts == nil {
		return []scanning.Alert{}, nil
	}
	return resp.Alerts, nil
}

// Version returns the engine version. It doubles as a reachability probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp versionResponse
	if err := c.call(ctx, "core/view/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// call performs GET {base}/JSON/{path}/ and decodes the body into out, if set.
func (c *Client) call(ctx context.Context, path string, params url.Values, out any) error {
	operation := strings.ReplaceAll(path, "/", ".")
	ctx, span := c.tracer.Start(ctx, "zap_client."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("zap.operation", path)))
	defer span.End()

	c.metrics.IncEngineCalls(ctx, operation)
	err := c.do(ctx, span, path, params, out)
	if err != nil {
		c.metrics.IncEngineErrors(ctx, operation)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, span trace.Span, path string, params url.Values, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	endpoint := c.baseURL.JoinPath("JSON", path).String() + "/"
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create engine request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-ZAP-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", scanning.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", scanning.ErrEngineUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", scanning.ErrEngineUnavailable, path, err)
	}
	return nil
}

// statusError maps a non-200 engine response onto a domain error.
func statusError(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	detail := apiErr.Message
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}

	if status < http.StatusInternalServerError {
		if _, ok := targetErrorCodes[apiErr.Code]; ok {
			return fmt.Errorf("%w: engine rejected target (%s): %s", scanning.ErrInvalidTarget, apiErr.Code, detail)
		}
	}
	return fmt.Errorf("%w: engine returned %d %s: %s", scanning.ErrEngineUnavailable, status, apiErr.Code, detail)
}

// parsePercent converts the engine's textual status into a percentage.
func parsePercent(s string) (int, error) {
	pct, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected status %q", scanning.ErrEngineUnavailable, s)
	}
	return min(max(pct, 0), 100), nil
}

// requestURL extracts the URL from the request line of a raw HTTP header
// block ("GET http://host/path HTTP/1.1").
func requestURL(header string) string {
	line, _, _ := strings.Cut(header, "\n")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// IsUnavailable reports whether err means the engine could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, scanning.ErrEngineUnavailable)
}
