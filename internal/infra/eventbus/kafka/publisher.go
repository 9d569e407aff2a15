package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

// PublisherMetrics records publish outcomes per topic.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

// eventTypeHeader carries the event type so consumers can route without
// decoding the payload.
const eventTypeHeader = "event-type"

// RunEventPublisher publishes run lifecycle events to a single topic as JSON.
// Events are keyed by run id, so every event of one run lands on the same
// partition in order.
type RunEventPublisher struct {
	producer sarama.SyncProducer
	// closer releases the underlying client, if the publisher owns one.
	closer io.Closer
	topic  string

	logger  *logger.Logger
	metrics PublisherMetrics
	tracer  trace.Tracer
}

var _ scanning.EventPublisher = (*RunEventPublisher)(nil)

// NewRunEventPublisher creates a publisher writing to topic. closer may be nil.
func NewRunEventPublisher(
	producer sarama.SyncProducer,
	closer io.Closer,
	topic string,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) *RunEventPublisher {
	return &RunEventPublisher{
		producer: producer,
		closer:   closer,
		topic:    topic,
		logger:   logger.With("component", "kafka_run_event_publisher"),
		metrics:  metrics,
		tracer:   tracer,
	}
}

// PublishRunEvent implements scanning.EventPublisher.
func (p *RunEventPublisher) PublishRunEvent(ctx context.Context, event scanning.RunEvent) error {
	ctx, span := tracing.StartProducerSpan(ctx, p.topic, p.tracer)
	defer span.End()
	span.SetAttributes(
		attribute.String("event_type", string(event.Type)),
		attribute.String("run_id", event.RunID),
	)

	payload, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.RunID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(eventTypeHeader), Value: []byte(event.Type)},
		},
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.metrics.IncPublishError(ctx, p.topic)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send message to kafka topic %s: %w", p.topic, err)
	}
	p.metrics.IncMessagePublished(ctx, p.topic)

	p.logger.Debug(ctx, "Published run event",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"event_type", string(event.Type),
		"run_id", event.RunID,
	)

	return nil
}

// Close flushes the producer and releases the client.
func (p *RunEventPublisher) Close() error {
	err := p.producer.Close()
	if p.closer != nil {
		if cerr := p.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
