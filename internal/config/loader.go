package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration to allow for different implementations like files, environment
// variables, or remote configuration services.
type Loader interface {
	// Load retrieves and parses the configuration from the underlying source.
	// It returns the parsed configuration or an error if loading fails.
	Load(ctx context.Context) (*Config, error)
}

// ConfigFileEnv names the optional YAML configuration file.
const ConfigFileEnv = "WEBSCAN_CONFIG"

const envPrefix = "WEBSCAN"

// legacyEnv maps the short variable names used by existing deployments onto
// configuration keys.
var legacyEnv = map[string]string{
	"engine.api_key":  "ZAP_API_KEY",
	"engine.base_url": "ZAP_BASE_URL",
	"web.api_host":    "API_HOST",
	"sqlmap.script":   "SQLMAP_PATH",
	"database.dsn":    "DATABASE_URL",
}

// EnvLoader reads dotenv files, then an optional config file, then the
// environment. Later sources override earlier ones.
type EnvLoader struct {
	dotenvFiles []string
	configFile  string
	lookupEnv   func(string) (string, bool)
}

// NewEnvLoader creates an EnvLoader. With no files given it reads "env" and
// ".env" from the working directory when they exist.
func NewEnvLoader(dotenvFiles ...string) *EnvLoader {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{"env", ".env"}
	}
	return &EnvLoader{dotenvFiles: dotenvFiles, lookupEnv: os.LookupEnv}
}

// WithConfigFile sets the YAML file to read, overriding WEBSCAN_CONFIG.
func (l *EnvLoader) WithConfigFile(path string) *EnvLoader {
	l.configFile = path
	return l
}

// Load implements Loader.
func (l *EnvLoader) Load(ctx context.Context) (*Config, error) {
	for _, f := range l.dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	configFile := l.configFile
	if configFile == "" {
		configFile, _ = l.lookupEnv(ConfigFileEnv)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Comma separated lists arrive as a single element from the environment.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Web.CORSAllowedOrigins = splitList(cfg.Web.CORSAllowedOrigins)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("web.api_host", "0.0.0.0:8000")
	v.SetDefault("web.debug_host", "0.0.0.0:8010")
	v.SetDefault("web.read_timeout", "5s")
	// Full scans hold the response open until every phase has run.
	v.SetDefault("web.write_timeout", "0s")
	v.SetDefault("web.idle_timeout", "120s")
	v.SetDefault("web.shutdown_timeout", "20s")
	v.SetDefault("web.cors_allowed_origins", []string{"*"})

	v.SetDefault("engine.base_url", "http://127.0.0.1:8080")
	v.SetDefault("engine.request_timeout", "30s")
	v.SetDefault("engine.requests_per_second", 0)
	v.SetDefault("engine.burst", 1)
	v.SetDefault("engine.connect_timeout", "30s")

	v.SetDefault("policy.crawl_poll_interval", "1s")
	v.SetDefault("policy.ajax_poll_interval", "2s")
	v.SetDefault("policy.ajax_timeout", "120s")
	v.SetDefault("policy.ajax_result_count", 10)
	v.SetDefault("policy.await_active_scan", false)
	v.SetDefault("policy.active_scan_poll_interval", "5s")

	v.SetDefault("sqlmap.python", "python")
	v.SetDefault("sqlmap.script", "../sqlmapproject-sqlmap/sqlmap.py")
	v.SetDefault("sqlmap.timeout", "0s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrations_path", "file://db/migrations")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "webscan-api")
	v.SetDefault("kafka.run_events_topic", "scan-run-events")
	v.SetDefault("kafka.connect_timeout", "30s")

	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("archive.bucket", "webscan-reports")
	v.SetDefault("archive.use_ssl", false)

	v.SetDefault("telemetry.service_name", "webscan-api")
	v.SetDefault("telemetry.exporter_endpoint", "")
	v.SetDefault("telemetry.probability", 0.05)
	v.SetDefault("telemetry.insecure", true)
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
