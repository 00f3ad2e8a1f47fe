package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "apphub.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("APPHUB_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "APPHUB_PORT")
	setString(&cfg.Server.CORSOrigin, "APPHUB_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "APPHUB_REQUEST_TIMEOUT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "APPHUB_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "APPHUB_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "APPHUB_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "APPHUB_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "APPHUB_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "APPHUB_LOG_LEVEL")
	setString(&cfg.Logging.Service, "APPHUB_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "APPHUB_LOG_ASYNC")
	setInt(&cfg.Logging.Buffer, "APPHUB_LOG_BUFFER")
	setInt(&cfg.Logging.Workers, "APPHUB_LOG_WORKERS")
	setString(&cfg.Logging.Overflow, "APPHUB_LOG_OVERFLOW")
	setInt(&cfg.Breaker.MaxFailures, "APPHUB_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "APPHUB_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "APPHUB_RATE_RPS")
	setInt(&cfg.Rate.Burst, "APPHUB_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "APPHUB_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "APPHUB_RATE_MAX_IDLE_TIME")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "APPHUB_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "APPHUB_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "APPHUB_CACHE_L2_TTL")
	setDuration(&cfg.Cache.SubscriptionTTL, "APPHUB_CACHE_SUBSCRIPTION_TTL")
	setDuration(&cfg.Cache.TenantNameTTL, "APPHUB_CACHE_TENANT_NAME_TTL")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "APPHUB_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "APPHUB_IDEMPOTENCY_TTL")

	// OpenTelemetry
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "APPHUB_OTEL_INSECURE")
	setFloat64(&cfg.OTel.SampleRatio, "APPHUB_OTEL_SAMPLE_RATIO")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Logging.Async {
		if cfg.Logging.Buffer < 1 || cfg.Logging.Workers < 1 {
			return errors.New("logging.buffer and logging.workers must be >= 1")
		}
		if cfg.Logging.Overflow != "drop" && cfg.Logging.Overflow != "block" {
			return fmt.Errorf("logging.overflow must be drop or block, got %q", cfg.Logging.Overflow)
		}
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.OTel.SampleRatio < 0 || cfg.OTel.SampleRatio > 1 {
		return errors.New("otel.sample_ratio must be within [0, 1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
