package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/webscan-armada/internal/api"
	"github.com/ahrav/webscan-armada/internal/api/debug"
	"github.com/ahrav/webscan-armada/internal/api/mux"
	"github.com/ahrav/webscan-armada/internal/api/routes"
	appScanning "github.com/ahrav/webscan-armada/internal/app/scanning"
	"github.com/ahrav/webscan-armada/internal/config"
	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/internal/infra/engine/zap"
	"github.com/ahrav/webscan-armada/internal/infra/eventbus/kafka"
	"github.com/ahrav/webscan-armada/internal/infra/eventbus/memory"
	"github.com/ahrav/webscan-armada/internal/infra/injection/sqlmap"
	"github.com/ahrav/webscan-armada/internal/infra/storage"
	"github.com/ahrav/webscan-armada/internal/infra/storage/objectstore"
	memoryStore "github.com/ahrav/webscan-armada/internal/infra/storage/scanning/memory"
	scanningStore "github.com/ahrav/webscan-armada/internal/infra/storage/scanning/postgres"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
	"github.com/ahrav/webscan-armada/pkg/common/otel"
	"github.com/ahrav/webscan-armada/pkg/metrics"
)

var build = "develop"

const (
	serviceType = "webscan-api"
)

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			// Add any error-specific attributes.
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("WEBSCAN-API-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	level := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	log = logger.NewWithMetadata(os.Stdout, level, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration
	cfg, err := config.NewEnvLoader().Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log.Info(ctx, "startup", "status", "config loaded",
		"engine", cfg.Engine.BaseURL,
		"run_history", cfg.Database.DSN != "",
		"kafka", len(cfg.Kafka.Brokers) > 0,
		"archive", cfg.Archive.Endpoint != "",
		"await_active_scan", cfg.Policy.AwaitActiveScan,
	)

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		ExcludedRoutes: map[string]struct{}{
			"/":             {},
			"/v1/health":    {},
			"/v1/readiness": {},
			"/debug":        {},
			"/metrics":      {},
		},
		Probability: cfg.Telemetry.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(cfg.Telemetry.ServiceName)

	mp := otel.GetMeterProvider()
	orchestrationMetrics, err := appScanning.NewOrchestrationMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating orchestration metrics: %w", err)
	}
	apiMetrics, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating api metrics: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	processMetrics := metrics.New("webscan", promRegistry)

	// -------------------------------------------------------------------------
	// Run History
	var runStore scanning.RunRepository
	if cfg.Database.DSN != "" {
		pool, err := newPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		log.Info(ctx, "startup", "status", "running migrations", "path", cfg.Database.MigrationsPath)
		if err := storage.RunMigrations(pool, cfg.Database.MigrationsPath); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		runStore = scanningStore.NewRunStore(pool, tracer)
	} else {
		log.Info(ctx, "startup", "status", "no database configured, keeping run history in memory")
		runStore = memoryStore.NewRunStore()
	}

	// -------------------------------------------------------------------------
	// Run Events
	log.Info(ctx, "startup", "status", "initializing event publisher")

	var publisher scanning.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := kafka.ConnectPublisher(&kafka.ClientConfig{
			Brokers:        cfg.Kafka.Brokers,
			ClientID:       cfg.Kafka.ClientID,
			RunEventsTopic: cfg.Kafka.RunEventsTopic,
			ConnectTimeout: cfg.Kafka.ConnectTimeout,
		}, log, apiMetrics, tracer)
		if err != nil {
			return fmt.Errorf("connecting event publisher: %w", err)
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		broker := memory.NewBroker()
		if err := broker.Subscribe(ctx, logRunEvent(log)); err != nil {
			return fmt.Errorf("subscribing run event logger: %w", err)
		}
		publisher = broker
	}

	// -------------------------------------------------------------------------
	// Report Archive
	var archive scanning.ReportArchive
	if cfg.Archive.Endpoint != "" {
		objectArchive, err := objectstore.NewArchive(objectstore.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		}, tracer)
		if err != nil {
			return fmt.Errorf("creating report archive: %w", err)
		}
		if err := objectArchive.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("preparing report archive: %w", err)
		}
		archive = objectArchive
	}

	// -------------------------------------------------------------------------
	// Scanning Engine
	log.Info(ctx, "startup", "status", "connecting to scanning engine", "url", cfg.Engine.BaseURL)

	engine, err := zap.NewClient(zap.Config{
		BaseURL:           cfg.Engine.BaseURL,
		APIKey:            cfg.Engine.APIKey,
		RequestTimeout:    cfg.Engine.RequestTimeout,
		RequestsPerSecond: cfg.Engine.RequestsPerSecond,
		Burst:             cfg.Engine.Burst,
	}, nil, orchestrationMetrics, tracer)
	if err != nil {
		return fmt.Errorf("creating engine client: %w", err)
	}

	// An unreachable engine is reported by readiness rather than failing startup.
	if version, err := zap.ConnectWithRetry(ctx, engine, cfg.Engine.ConnectTimeout, log); err != nil {
		log.Warn(ctx, "startup", "status", "scanning engine not reachable", "err", err)
	} else {
		log.Info(ctx, "startup", "status", "scanning engine reachable", "version", version)
	}

	// -------------------------------------------------------------------------
	// Orchestration
	sequencer := appScanning.NewPhaseSequencer(engine, cfg.Policy.PhasePolicy(), orchestrationMetrics, tracer, log)
	streamer := appScanning.NewProgressStreamer(sequencer, tracer, log)
	injector := sqlmap.NewRunner(sqlmap.Config{
		Python:  cfg.Sqlmap.Python,
		Script:  cfg.Sqlmap.Script,
		Timeout: cfg.Sqlmap.Timeout,
	}, processMetrics, tracer, log)

	service := appScanning.NewService(
		sequencer,
		streamer,
		injector,
		archive,
		runStore,
		publisher,
		orchestrationMetrics,
		tracer,
		log,
	)

	// -------------------------------------------------------------------------
	// Start Debug Service

	go func() {
		log.Info(ctx, "startup", "status", "debug router started", "host", cfg.Web.DebugHost)

		if err := http.ListenAndServe(cfg.Web.DebugHost, debug.Mux(promRegistry)); err != nil {
			log.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "msg", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Start API Service

	log.Info(ctx, "startup", "status", "initializing API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	cfgMux := mux.Config{
		Build:   build,
		Log:     log,
		Tracer:  tracer,
		Metrics: apiMetrics,
		Scans:   service,
		Runs:    service,
		Ready: func(ctx context.Context) error {
			_, err := engine.Version(ctx)
			return err
		},
	}

	webAPI := mux.WebAPI(cfgMux,
		routes.Routes(),
		mux.WithCORS(cfg.Web.CORSAllowedOrigins),
	)

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      webAPI,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info(ctx, "startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing db config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating db pool: %w", err)
	}
	return pool, nil
}

// logRunEvent records run lifecycle events when no broker is configured.
func logRunEvent(log *logger.Logger) memory.Handler {
	return func(ctx context.Context, evt scanning.RunEvent) error {
		attrs := []any{
			"type", evt.Type,
			"run_id", evt.RunID,
			"kind", evt.Kind,
			"target", evt.Target,
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			attrs = append(attrs, "span_id", sc.SpanID().String())
		}
		if evt.Error != "" {
			attrs = append(attrs, "error", evt.Error)
		}
		log.Info(ctx, "run event", attrs...)
		return nil
	}
}
