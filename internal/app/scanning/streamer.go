package scanning

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

// ProgressStreamer exposes the sequencer's crawl phase as an ordered stream of
// progress events instead of a single blocking result.
type ProgressStreamer struct {
	sequencer *PhaseSequencer
	tracer    trace.Tracer
	logger    *logger.Logger
}

// NewProgressStreamer creates a ProgressStreamer backed by sequencer.
func NewProgressStreamer(sequencer *PhaseSequencer, tracer trace.Tracer, logger *logger.Logger) *ProgressStreamer {
	return &ProgressStreamer{
		sequencer: sequencer,
		tracer:    tracer,
		logger:    logger.With("component", "progress_streamer"),
	}
}

// Stream launches a crawl of target and returns its events:
//   - zero or more spiderProgress events, one per poll tick, carrying the percentage
//   - exactly one spiderComplete event
//   - exactly one spiderResults event carrying the newline-joined URL list
//
// The event channel is unbuffered, so the poll loop only advances as fast as
// the consumer receives. Cancelling ctx abandons the poll loop; the crawl keeps
// running at the engine. If the crawl fails, the event channel is closed early
// and the error is delivered on the error channel. Both channels are closed
// when the stream ends and callers must drain the error channel.
func (s *ProgressStreamer) Stream(ctx context.Context, target scanning.Target) (<-chan scanning.ProgressEvent, <-chan error) {
	events := make(chan scanning.ProgressEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(events)

		ctx, span := s.tracer.Start(ctx, "progress_streamer.stream",
			trace.WithAttributes(attribute.String("target", target.String())))
		defer span.End()

		emit := func(ctx context.Context, evt scanning.ProgressEvent) error {
			select {
			case events <- evt:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		onTick := func(ctx context.Context, pct int) error {
			return emit(ctx, scanning.ProgressEvent{
				Name: scanning.EventSpiderProgress,
				Data: strconv.Itoa(pct),
			})
		}

		urls, err := s.sequencer.crawl(ctx, target, onTick)
		if err != nil {
			span.RecordError(err)
			s.logger.Warn(ctx, "Streamed crawl ended early", "target", target.String(), "error", err)
			errCh <- err
			return
		}

		if err := emit(ctx, scanning.ProgressEvent{Name: scanning.EventSpiderComplete, Data: "Spider has completed!"}); err != nil {
			errCh <- err
			return
		}

		if err := emit(ctx, scanning.ProgressEvent{Name: scanning.EventSpiderResults, Data: strings.Join(urls, "\n")}); err != nil {
			errCh <- err
			return
		}
		span.SetAttributes(attribute.Int("urls", len(urls)))
	}()

	return events, errCh
}
