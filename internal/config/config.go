// Package config holds the process configuration. It is loaded once at
// startup and not modified afterwards.
package config

import (
	"time"

	"github.com/ahrav/webscan-armada/internal/app/scanning"
)

// Config represents the top-level configuration.
type Config struct {
	Web       WebConfig       `mapstructure:"web"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Sqlmap    SqlmapConfig    `mapstructure:"sqlmap"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// WebConfig configures the HTTP listeners.
type WebConfig struct {
	APIHost            string        `mapstructure:"api_host" validate:"required"`
	DebugHost          string        `mapstructure:"debug_host" validate:"required"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// EngineConfig locates the scanning engine.
type EngineConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	APIKey            string        `mapstructure:"api_key"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	// ConnectTimeout bounds the startup reachability check.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
}

// PolicyConfig tunes the phase sequencing.
type PolicyConfig struct {
	CrawlPollInterval      time.Duration `mapstructure:"crawl_poll_interval" validate:"gt=0"`
	AjaxPollInterval       time.Duration `mapstructure:"ajax_poll_interval" validate:"gt=0"`
	AjaxTimeout            time.Duration `mapstructure:"ajax_timeout" validate:"gt=0"`
	AjaxResultCount        int           `mapstructure:"ajax_result_count" validate:"gt=0"`
	AwaitActiveScan        bool          `mapstructure:"await_active_scan"`
	ActiveScanPollInterval time.Duration `mapstructure:"active_scan_poll_interval" validate:"gt=0"`
}

// PhasePolicy converts the section into the sequencer policy.
func (p PolicyConfig) PhasePolicy() scanning.PhasePolicy {
	return scanning.PhasePolicy{
		CrawlPollInterval:      p.CrawlPollInterval,
		AjaxPollInterval:       p.AjaxPollInterval,
		AjaxTimeout:            p.AjaxTimeout,
		AjaxResultCount:        p.AjaxResultCount,
		AwaitActiveScan:        p.AwaitActiveScan,
		ActiveScanPollInterval: p.ActiveScanPollInterval,
	}
}

// SqlmapConfig locates the injection tool.
type SqlmapConfig struct {
	Python  string        `mapstructure:"python"`
	Script  string        `mapstructure:"script" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// DatabaseConfig enables Postgres run history when DSN is set.
type DatabaseConfig struct {
	DSN            string `mapstructure:"dsn"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConns       int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// KafkaConfig enables run event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	ClientID       string        `mapstructure:"client_id"`
	RunEventsTopic string        `mapstructure:"run_events_topic" validate:"required_with=Brokers"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
}

// ArchiveConfig enables report archiving when Endpoint is set.
type ArchiveConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket" validate:"required_with=Endpoint"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	ServiceName      string  `mapstructure:"service_name" validate:"required"`
	ExporterEndpoint string  `mapstructure:"exporter_endpoint"`
	Probability      float64 `mapstructure:"probability" validate:"gte=0,lte=1"`
	Insecure         bool    `mapstructure:"insecure"`
}
