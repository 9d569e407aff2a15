package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

// ClientConfig contains all configuration needed for Kafka client setup.
type ClientConfig struct {
	Brokers  []string
	ClientID string
	// RunEventsTopic receives run lifecycle events.
	RunEventsTopic string
	// ConnectTimeout bounds the connection retries at startup.
	ConnectTimeout time.Duration
}

// newSaramaConfig returns the producer configuration shared by every client.
func newSaramaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Retry.Max = 3

	config.Version = sarama.V3_6_0_0

	return config
}

// NewClient creates and configures a Kafka client with the provided settings.
func NewClient(cfg *ClientConfig) (sarama.Client, error) {
	return sarama.NewClient(cfg.Brokers, newSaramaConfig(cfg.ClientID))
}

// ConnectPublisher connects to the brokers and returns a RunEventPublisher.
// Connection failures are retried with exponential backoff until
// cfg.ConnectTimeout elapses.
func ConnectPublisher(
	cfg *ClientConfig,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) (*RunEventPublisher, error) {
	var publisher *RunEventPublisher

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.MaxElapsedTime = cfg.ConnectTimeout

	operation := func() error {
		client, err := NewClient(cfg)
		if err != nil {
			return fmt.Errorf("creating kafka client: %w", err)
		}

		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			client.Close()
			return fmt.Errorf("creating producer: %w", err)
		}

		publisher = NewRunEventPublisher(producer, client, cfg.RunEventsTopic, logger, metrics, tracer)
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return publisher, nil
}
