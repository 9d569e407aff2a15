package scanning

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

// PhaseSequencer runs the crawl, AJAX crawl and active scan phases against a
// single target, strictly one after another. Calls block until the sequence,
// or the bounded sub-phase, finishes.
type PhaseSequencer struct {
	engine scanning.Engine
	policy PhasePolicy

	// waiter suspends between polls.
	waiter Waiter
	// timeProvider is used for the AJAX crawl deadline.
	timeProvider timeProvider

	metrics OrchestrationMetrics
	tracer  trace.Tracer
	logger  *logger.Logger
}

// NewPhaseSequencer creates a PhaseSequencer that drives engine with policy.
func NewPhaseSequencer(
	engine scanning.Engine,
	policy PhasePolicy,
	metrics OrchestrationMetrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *PhaseSequencer {
	return &PhaseSequencer{
		engine:       engine,
		policy:       policy,
		waiter:       timerWaiter{},
		timeProvider: realTimeProvider{},
		metrics:      metrics,
		tracer:       tracer,
		logger:       logger.With("component", "phase_sequencer"),
	}
}

// Crawl launches a spider crawl of target, waits for it to reach 100% and
// returns the discovered URLs.
func (s *PhaseSequencer) Crawl(ctx context.Context, target scanning.Target) ([]string, error) {
	return s.crawl(ctx, target, nil)
}

// Run executes every phase against target and returns the collected report.
// An empty alert list is a valid outcome. Any engine failure aborts the
// remaining phases and is returned unchanged.
func (s *PhaseSequencer) Run(ctx context.Context, target scanning.Target) (*scanning.ScanReport, error) {
	ctx, span := s.tracer.Start(ctx, "phase_sequencer.run",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	report := &scanning.ScanReport{Target: target.String()}

	urls, err := s.crawl(ctx, target, nil)
	if err != nil {
		return nil, s.fail(span, err)
	}
	report.CrawledURLs = urls

	ajaxURLs, timedOut, err := s.ajaxCrawl(ctx, target)
	if err != nil {
		return nil, s.fail(span, err)
	}
	report.AjaxURLs = ajaxURLs
	report.AjaxTimedOut = timedOut

	handle, err := s.activeScan(ctx, target)
	if err != nil {
		return nil, s.fail(span, err)
	}
	report.ActiveScan = handle

	hosts, alerts, err := s.collect(ctx, target)
	if err != nil {
		return nil, s.fail(span, err)
	}
	report.Hosts = hosts
	report.Alerts = alerts

	span.SetAttributes(
		attribute.Int("crawled_urls", len(report.CrawledURLs)),
		attribute.Int("ajax_urls", len(report.AjaxURLs)),
		attribute.Int("alerts", len(report.Alerts)),
	)
	span.SetStatus(codes.Ok, "scan sequence completed")

	return report, nil
}

func (s *PhaseSequencer) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// crawl runs the spider phase. onTick, when set, is called with the completion
// percentage of every poll that did not observe 100.
func (s *PhaseSequencer) crawl(
	ctx context.Context,
	target scanning.Target,
	onTick func(ctx context.Context, pct int) error,
) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "phase_sequencer.crawl")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObservePhaseDuration(ctx, PhaseCrawl, time.Since(start)) }()

	s.logger.Info(ctx, "Spidering target", "target", target.String())

	handle, err := s.engine.LaunchCrawl(ctx, target)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("launching crawl: %w", err))
	}
	span.SetAttributes(attribute.String("scan_handle", handle.String()))

	if err := s.awaitCrawl(ctx, handle, onTick); err != nil {
		return nil, s.fail(span, err)
	}
	s.logger.Info(ctx, "Spider has completed", "target", target.String(), "scan_handle", handle.String())

	urls, err := s.engine.CrawlResults(ctx, handle)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("fetching crawl results: %w", err))
	}
	span.SetAttributes(attribute.Int("urls", len(urls)))

	return urls, nil
}

// awaitCrawl polls the crawl status until it reaches 100. There is no upper
// bound; the engine terminates crawls on its own.
func (s *PhaseSequencer) awaitCrawl(
	ctx context.Context,
	handle scanning.ScanHandle,
	onTick func(ctx context.Context, pct int) error,
) error {
	for {
		pct, err := s.engine.CrawlStatus(ctx, handle)
		if err != nil {
			return fmt.Errorf("polling crawl status: %w", err)
		}
		if pct >= 100 {
			return nil
		}

		s.metrics.IncPollTicks(ctx, PhaseCrawl)
		s.logger.Debug(ctx, "Spider progress", "scan_handle", handle.String(), "percent", pct)

		if onTick != nil {
			if err := onTick(ctx, pct); err != nil {
				return err
			}
		}

		if err := s.waiter.Wait(ctx, s.policy.CrawlPollInterval); err != nil {
			return err
		}
	}
}

// ajaxCrawl launches the AJAX crawler and waits while it is running, up to
// the policy timeout. Hitting the timeout is not an error: the crawler is left
// running at the engine and whatever results exist are returned.
func (s *PhaseSequencer) ajaxCrawl(ctx context.Context, target scanning.Target) ([]string, bool, error) {
	ctx, span := s.tracer.Start(ctx, "phase_sequencer.ajax_crawl")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObservePhaseDuration(ctx, PhaseAjaxCrawl, time.Since(start)) }()

	s.logger.Info(ctx, "Ajax spidering target", "target", target.String())

	if err := s.engine.LaunchAjaxCrawl(ctx, target); err != nil {
		return nil, false, s.fail(span, fmt.Errorf("launching ajax crawl: %w", err))
	}

	deadline := s.timeProvider.Now().Add(s.policy.AjaxTimeout)
	timedOut := false
	for {
		status, err := s.engine.AjaxStatus(ctx)
		if err != nil {
			return nil, false, s.fail(span, fmt.Errorf("polling ajax crawl status: %w", err))
		}
		if status != scanning.AjaxStatusRunning {
			break
		}

		if !s.timeProvider.Now().Before(deadline) {
			timedOut = true
			s.metrics.IncAjaxTimeouts(ctx)
			span.AddEvent("ajax_crawl_timeout")
			s.logger.Warn(ctx, "Ajax spider still running at deadline, continuing with partial results",
				"target", target.String(),
				"timeout", s.policy.AjaxTimeout,
			)
			break
		}

		s.metrics.IncPollTicks(ctx, PhaseAjaxCrawl)
		s.logger.Debug(ctx, "Ajax spider status", "status", status.String())

		if err := s.waiter.Wait(ctx, s.policy.AjaxPollInterval); err != nil {
			return nil, false, s.fail(span, err)
		}
	}

	urls, err := s.engine.AjaxResults(ctx, 0, s.policy.AjaxResultCount)
	if err != nil {
		return nil, false, s.fail(span, fmt.Errorf("fetching ajax crawl results: %w", err))
	}
	span.SetAttributes(attribute.Int("urls", len(urls)), attribute.Bool("timed_out", timedOut))
	s.logger.Info(ctx, "Ajax spider completed", "target", target.String(), "urls", len(urls), "timed_out", timedOut)

	return urls, timedOut, nil
}

// activeScan launches the active scan. Unless the policy asks for it, the scan
// is not awaited: the sequencer proceeds straight to result collection.
func (s *PhaseSequencer) activeScan(ctx context.Context, target scanning.Target) (scanning.ScanHandle, error) {
	ctx, span := s.tracer.Start(ctx, "phase_sequencer.active_scan",
		trace.WithAttributes(attribute.Bool("await_completion", s.policy.AwaitActiveScan)))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObservePhaseDuration(ctx, PhaseActiveScan, time.Since(start)) }()

	s.logger.Info(ctx, "Active scanning target", "target", target.String())

	handle, err := s.engine.LaunchActiveScan(ctx, target)
	if err != nil {
		return "", s.fail(span, fmt.Errorf("launching active scan: %w", err))
	}
	span.SetAttributes(attribute.String("scan_handle", handle.String()))

	if !s.policy.AwaitActiveScan {
		return handle, nil
	}

	for {
		pct, err := s.engine.ActiveScanStatus(ctx, handle)
		if err != nil {
			return "", s.fail(span, fmt.Errorf("polling active scan status: %w", err))
		}
		if pct >= 100 {
			break
		}

		s.metrics.IncPollTicks(ctx, PhaseActiveScan)
		s.logger.Debug(ctx, "Scan progress", "scan_handle", handle.String(), "percent", pct)

		if err := s.waiter.Wait(ctx, s.policy.ActiveScanPollInterval); err != nil {
			return "", s.fail(span, err)
		}
	}
	s.logger.Info(ctx, "Active scan completed", "target", target.String())

	return handle, nil
}

// collect fetches the host list and the alerts recorded for target.
func (s *PhaseSequencer) collect(ctx context.Context, target scanning.Target) ([]string, []scanning.Alert, error) {
	ctx, span := s.tracer.Start(ctx, "phase_sequencer.collect")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObservePhaseDuration(ctx, PhaseCollect, time.Since(start)) }()

	hosts, err := s.engine.ListHosts(ctx)
	if err != nil {
		return nil, nil, s.fail(span, fmt.Errorf("listing hosts: %w", err))
	}

	alerts, err := s.engine.ListAlerts(ctx, target)
	if err != nil {
		return nil, nil, s.fail(span, fmt.Errorf("listing alerts: %w", err))
	}
	span.SetAttributes(attribute.Int("hosts", len(hosts)), attribute.Int("alerts", len(alerts)))
	s.logger.Info(ctx, "Collected scan results", "target", target.String(), "hosts", len(hosts), "alerts", len(alerts))

	return hosts, alerts, nil
}
