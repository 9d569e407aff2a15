package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

// Service is the orchestration entry point. It validates targets, hands them
// to the sequencer, streamer or injection tool, and records every invocation
// as a run. It adds no scanning logic of its own.
type Service struct {
	sequencer *PhaseSequencer
	streamer  *ProgressStreamer
	injection scanning.InjectionTool
	// archive is optional; raw injection reports are only stored when set.
	archive scanning.ReportArchive

	runs   scanning.RunRepository
	events scanning.EventPublisher

	timeProvider timeProvider
	metrics      OrchestrationMetrics
	tracer       trace.Tracer
	logger       *logger.Logger
}

// NewService wires the orchestration service. archive may be nil.
func NewService(
	sequencer *PhaseSequencer,
	streamer *ProgressStreamer,
	injection scanning.InjectionTool,
	archive scanning.ReportArchive,
	runs scanning.RunRepository,
	events scanning.EventPublisher,
	metrics OrchestrationMetrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *Service {
	return &Service{
		sequencer:    sequencer,
		streamer:     streamer,
		injection:    injection,
		archive:      archive,
		runs:         runs,
		events:       events,
		timeProvider: realTimeProvider{},
		metrics:      metrics,
		tracer:       tracer,
		logger:       logger.With("component", "orchestration_service"),
	}
}

// RunCrawlOnly crawls target and returns the discovered URLs.
func (s *Service) RunCrawlOnly(ctx context.Context, rawTarget string) ([]string, error) {
	target, err := scanning.NewTarget(rawTarget)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "orchestration_service.run_crawl_only",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	run := s.startRun(ctx, scanning.RunKindCrawl, target)
	urls, err := s.sequencer.Crawl(ctx, target)
	s.finishRun(ctx, span, run, len(urls), err)
	if err != nil {
		return nil, err
	}

	return urls, nil
}

// RunFullScan runs every phase against target and returns the report.
func (s *Service) RunFullScan(ctx context.Context, rawTarget string) (*scanning.ScanReport, error) {
	target, err := scanning.NewTarget(rawTarget)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "orchestration_service.run_full_scan",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	run := s.startRun(ctx, scanning.RunKindFullScan, target)
	report, err := s.sequencer.Run(ctx, target)
	var alerts int
	if report != nil {
		alerts = len(report.Alerts)
	}
	s.finishRun(ctx, span, run, alerts, err)
	if err != nil {
		return nil, err
	}

	return report, nil
}

// StreamCrawl starts a streamed crawl of target. An invalid target is reported
// synchronously; everything else arrives on the returned channels, with the
// same contract as ProgressStreamer.Stream.
func (s *Service) StreamCrawl(ctx context.Context, rawTarget string) (<-chan scanning.ProgressEvent, <-chan error, error) {
	target, err := scanning.NewTarget(rawTarget)
	if err != nil {
		return nil, nil, err
	}

	ctx, span := s.tracer.Start(ctx, "orchestration_service.stream_crawl",
		trace.WithAttributes(attribute.String("target", target.String())))

	run := s.startRun(ctx, scanning.RunKindCrawlStream, target)
	events, errs := s.streamer.Stream(ctx, target)

	out := make(chan scanning.ProgressEvent)
	outErr := make(chan error, 1)

	go func() {
		defer close(outErr)
		defer close(out)
		defer span.End()

		// The run is recorded even when the consumer went away.
		recordCtx := context.WithoutCancel(ctx)

		var urls int
		var sendErr error
		for evt := range events {
			if evt.Name == scanning.EventSpiderResults && evt.Data != "" {
				urls = strings.Count(evt.Data, "\n") + 1
			}
			if sendErr != nil {
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				sendErr = ctx.Err()
			}
		}

		err := <-errs
		if err == nil {
			err = sendErr
		}
		s.finishRun(recordCtx, span, run, urls, err)
		if err != nil {
			outErr <- err
		}
	}()

	return out, outErr, nil
}

// RunInjectionScan runs the SQL-injection tool against target and parses its
// report. The raw report is archived before parsing when an archive is set.
func (s *Service) RunInjectionScan(ctx context.Context, rawTarget string) ([]scanning.SqlFinding, error) {
	target, err := scanning.NewTarget(rawTarget)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "orchestration_service.run_injection_scan",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	run := s.startRun(ctx, scanning.RunKindInjection, target)
	findings, err := s.injectionScan(ctx, run, target)
	s.finishRun(ctx, span, run, len(findings), err)
	if err != nil {
		return nil, err
	}

	return findings, nil
}

func (s *Service) injectionScan(ctx context.Context, run *scanning.Run, target scanning.Target) ([]scanning.SqlFinding, error) {
	start := time.Now()
	defer func() { s.metrics.ObservePhaseDuration(ctx, PhaseInjection, time.Since(start)) }()

	s.logger.Info(ctx, "Running injection tool on target", "target", target.String())

	report, err := s.injection.Run(ctx, target)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		key := fmt.Sprintf("sqlmap/%s.txt", run.ID)
		if err := s.archive.Store(ctx, key, report); err != nil {
			s.logger.Warn(ctx, "failed to archive injection report", "key", key, "error", err)
		}
	}

	findings, err := ParseInjectionReport(report)
	if err != nil {
		return nil, err
	}

	return findings, nil
}

// GetRun returns a recorded run.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*scanning.Run, error) {
	return s.runs.GetRun(ctx, id)
}

// ListRuns returns recorded runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*scanning.Run, error) {
	return s.runs.ListRuns(ctx, limit, offset)
}

// startRun records a new run. Bookkeeping failures are logged and never fail
// the scan itself.
func (s *Service) startRun(ctx context.Context, kind scanning.RunKind, target scanning.Target) *scanning.Run {
	now := s.timeProvider.Now()
	run := scanning.NewRun(kind, target, now)
	s.metrics.IncRunsStarted(ctx, kind.String())

	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.logger.Error(ctx, "failed to record run", "run_id", run.ID.String(), "error", err)
	}
	if err := s.events.PublishRunEvent(ctx, scanning.NewRunEvent(scanning.EventRunStarted, run, now)); err != nil {
		s.logger.Error(ctx, "failed to publish run event", "run_id", run.ID.String(), "error", err)
	}

	return run
}

func (s *Service) finishRun(ctx context.Context, span trace.Span, run *scanning.Run, count int, runErr error) {
	now := s.timeProvider.Now()
	span.SetAttributes(attribute.String("run_id", run.ID.String()))

	eventType := scanning.EventRunCompleted
	if runErr != nil {
		run.Fail(runErr, now)
		eventType = scanning.EventRunFailed
		s.metrics.IncRunsFailed(ctx, run.Kind.String())
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())

		logFn := s.logger.Error
		if errors.Is(runErr, context.Canceled) {
			logFn = s.logger.Info
		}
		logFn(ctx, "run failed", "run_id", run.ID.String(), "kind", run.Kind.String(), "error", runErr)
	} else {
		run.Complete(count, now)
		s.metrics.ObserveFindings(ctx, run.Kind.String(), count)
		span.SetStatus(codes.Ok, "run completed")
		s.logger.Info(ctx, "run completed",
			"run_id", run.ID.String(),
			"kind", run.Kind.String(),
			"results", count,
			"duration", run.Duration(),
		)
	}

	if err := s.runs.UpdateRun(ctx, run); err != nil {
		s.logger.Error(ctx, "failed to update run", "run_id", run.ID.String(), "error", err)
	}
	if err := s.events.PublishRunEvent(ctx, scanning.NewRunEvent(eventType, run, now)); err != nil {
		s.logger.Error(ctx, "failed to publish run event", "run_id", run.ID.String(), "error", err)
	}
}
