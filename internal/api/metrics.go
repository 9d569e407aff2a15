package api

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/webscan-armada/internal/infra/eventbus/kafka"
)

const namespace = "webscan_api"

// APIMetrics defines metrics operations needed by the API.
type APIMetrics interface {
	// Run event publishing metrics
	kafka.PublisherMetrics

	// API metrics
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
	IncStreamsOpened(ctx context.Context)
	IncStreamsAborted(ctx context.Context)
}

type apiMetrics struct {
	// Kafka metrics
	messagesPublished metric.Int64Counter
	publishErrors     metric.Int64Counter

	// API metrics
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	streamsOpened   metric.Int64Counter
	streamsAborted  metric.Int64Counter
}

// NewAPIMetrics creates the API instruments on mp.
func NewAPIMetrics(mp metric.MeterProvider) (*apiMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	if m.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of run events published"),
	); err != nil {
		return nil, err
	}

	if m.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of run event publish errors"),
	); err != nil {
		return nil, err
	}

	if m.requestsTotal, err = meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.streamsOpened, err = meter.Int64Counter(
		"crawl_streams_opened_total",
		metric.WithDescription("Total number of streamed crawls started"),
	); err != nil {
		return nil, err
	}

	if m.streamsAborted, err = meter.Int64Counter(
		"crawl_streams_aborted_total",
		metric.WithDescription("Total number of streamed crawls that ended with an error or a disconnect"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// PublisherMetrics implementation
func (m *apiMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *apiMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// APIMetrics implementation
func (m *apiMetrics) IncRequestsTotal(ctx context.Context, method, path string, status int) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	))
}

func (m *apiMetrics) ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration) {
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	))
}

func (m *apiMetrics) IncStreamsOpened(ctx context.Context) { m.streamsOpened.Add(ctx, 1) }

func (m *apiMetrics) IncStreamsAborted(ctx context.Context) { m.streamsAborted.Add(ctx, 1) }
