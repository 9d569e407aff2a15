package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Phase names used for tracing and metric attributes.
const (
	PhaseCrawl      = "crawl"
	PhaseAjaxCrawl  = "ajax_crawl"
	PhaseActiveScan = "active_scan"
	PhaseCollect    = "collect"
	PhaseInjection  = "injection"
)

// OrchestrationMetrics defines the metrics recorded while sequencing scan phases.
type OrchestrationMetrics interface {
	// Phase metrics
	ObservePhaseDuration(ctx context.Context, phase string, duration time.Duration)
	IncPollTicks(ctx context.Context, phase string)
	IncAjaxTimeouts(ctx context.Context)

	// Run metrics
	IncRunsStarted(ctx context.Context, kind string)
	IncRunsFailed(ctx context.Context, kind string)
	ObserveFindings(ctx context.Context, kind string, count int)

	// Engine metrics
	IncEngineCalls(ctx context.Context, operation string)
	IncEngineErrors(ctx context.Context, operation string)
}

// orchestrationMetrics implements OrchestrationMetrics.
type orchestrationMetrics struct {
	phaseDuration metric.Float64Histogram
	pollTicks     metric.Int64Counter
	ajaxTimeouts  metric.Int64Counter

	runsStarted metric.Int64Counter
	runsFailed  metric.Int64Counter
	findings    metric.Int64Histogram

	engineCalls  metric.Int64Counter
	engineErrors metric.Int64Counter
}

const namespace = "scan_orchestrator"

// NewOrchestrationMetrics creates the orchestration instruments on mp.
func NewOrchestrationMetrics(mp metric.MeterProvider) (*orchestrationMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(orchestrationMetrics)
	var err error

	if m.phaseDuration, err = meter.Float64Histogram(
		"phase_duration_seconds",
		metric.WithDescription("Time spent in each scan phase"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.pollTicks, err = meter.Int64Counter(
		"poll_ticks_total",
		metric.WithDescription("Total number of status polls that did not observe completion"),
	); err != nil {
		return nil, err
	}

	if m.ajaxTimeouts, err = meter.Int64Counter(
		"ajax_crawl_timeouts_total",
		metric.WithDescription("Total number of AJAX crawls abandoned at their deadline"),
	); err != nil {
		return nil, err
	}

	if m.runsStarted, err = meter.Int64Counter(
		"runs_started_total",
		metric.WithDescription("Total number of orchestration runs started"),
	); err != nil {
		return nil, err
	}

	if m.runsFailed, err = meter.Int64Counter(
		"runs_failed_total",
		metric.WithDescription("Total number of orchestration runs that failed"),
	); err != nil {
		return nil, err
	}

	if m.findings, err = meter.Int64Histogram(
		"findings_per_run",
		metric.WithDescription("Number of URLs, alerts or injection findings produced per run"),
	); err != nil {
		return nil, err
	}

	if m.engineCalls, err = meter.Int64Counter(
		"engine_calls_total",
		metric.WithDescription("Total number of calls made to the scanning engine"),
	); err != nil {
		return nil, err
	}

	if m.engineErrors, err = meter.Int64Counter(
		"engine_errors_total",
		metric.WithDescription("Total number of failed calls to the scanning engine"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *orchestrationMetrics) ObservePhaseDuration(ctx context.Context, phase string, duration time.Duration) {
	m.phaseDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("phase", phase)))
}

func (m *orchestrationMetrics) IncPollTicks(ctx context.Context, phase string) {
	m.pollTicks.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

func (m *orchestrationMetrics) IncAjaxTimeouts(ctx context.Context) { m.ajaxTimeouts.Add(ctx, 1) }

func (m *orchestrationMetrics) IncRunsStarted(ctx context.Context, kind string) {
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *orchestrationMetrics) IncRunsFailed(ctx context.Context, kind string) {
	m.runsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *orchestrationMetrics) ObserveFindings(ctx context.Context, kind string, count int) {
	m.findings.Record(ctx, int64(count), metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *orchestrationMetrics) IncEngineCalls(ctx context.Context, operation string) {
	m.engineCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *orchestrationMetrics) IncEngineErrors(ctx context.Context, operation string) {
	m.engineErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}
