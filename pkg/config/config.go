package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the cutover control plane.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional, backs the cross-instance rollback lock)
	Redis RedisConfig `yaml:"redis"`

	// Metrics aggregation configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Snapshot and rollback configuration
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Alert threshold configuration
	Alerting AlertingConfig `yaml:"alerting"`

	// Retention configuration
	Retention RetentionConfig `yaml:"retention"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"cutover"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"machshop_cutover"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// URL builds a PostgreSQL connection URL from the configuration.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis connection configuration.
// An empty host disables Redis; the rollback lock then falls back to an
// in-process locker, which is only correct for single-instance deployments.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// MetricsConfig holds metrics aggregation settings.
type MetricsConfig struct {
	// PredictionSamples is the number of most-recent samples whose import
	// rates are averaged for completion prediction.
	PredictionSamples int `yaml:"prediction_samples" env:"METRICS_PREDICTION_SAMPLES" env-default:"5"`
	// DefaultTrendWindow is the trend window applied when a request does
	// not specify one.
	DefaultTrendWindow time.Duration `yaml:"default_trend_window" env:"METRICS_DEFAULT_TREND_WINDOW" env-default:"1h"`
}

// SnapshotConfig holds snapshot and rollback engine settings.
type SnapshotConfig struct {
	// StorageTimeout bounds every storage read/write performed during
	// snapshot capture and rollback restore.
	StorageTimeout time.Duration `yaml:"storage_timeout" env:"SNAPSHOT_STORAGE_TIMEOUT" env-default:"30s"`
	// CaptureConcurrency bounds how many entity types are read in parallel
	// during snapshot capture.
	CaptureConcurrency int `yaml:"capture_concurrency" env:"SNAPSHOT_CAPTURE_CONCURRENCY" env-default:"4"`
	// LockTTL is the Redis lock expiry; it must exceed the longest expected
	// rollback so a crashed holder cannot wedge the snapshot forever.
	LockTTL time.Duration `yaml:"lock_ttl" env:"SNAPSHOT_LOCK_TTL" env-default:"30m"`
}

// AlertingConfig holds threshold-evaluation settings.
type AlertingConfig struct {
	// DeviationMedium is the percentage deviation at which a threshold
	// breach starts firing; DeviationHigh and DeviationCritical escalate it.
	DeviationMedium   float64 `yaml:"deviation_medium" env:"ALERTING_DEVIATION_MEDIUM" env-default:"10"`
	DeviationHigh     float64 `yaml:"deviation_high" env:"ALERTING_DEVIATION_HIGH" env-default:"20"`
	DeviationCritical float64 `yaml:"deviation_critical" env:"ALERTING_DEVIATION_CRITICAL" env-default:"40"`
	// ErrorRatePercent is the failed/total percentage at which an error-rate
	// alert fires.
	ErrorRatePercent float64 `yaml:"error_rate_percent" env:"ALERTING_ERROR_RATE_PERCENT" env-default:"5"`
}

// RetentionConfig holds data retention settings.
type RetentionConfig struct {
	Days          int           `yaml:"days" env:"RETENTION_DAYS" env-default:"90"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"RETENTION_SWEEP_INTERVAL" env-default:"24h"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. A missing config.yaml is not an error; environment
// variables and defaults then apply alone.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""
	if certSet != keySet {
		return errors.New("both tls_cert_path and tls_key_path must be provided together")
	}
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return errors.New("auth verification enabled but no JWKS endpoints configured")
	}
	if c.Metrics.PredictionSamples < 2 {
		return fmt.Errorf("metrics.prediction_samples must be at least 2, got %d", c.Metrics.PredictionSamples)
	}
	if c.Snapshot.CaptureConcurrency < 1 {
		return fmt.Errorf("snapshot.capture_concurrency must be at least 1, got %d", c.Snapshot.CaptureConcurrency)
	}
	return nil
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
// Malformed pairs are skipped.
func parseJWKSEndpoints(s string) map[string]string {
	endpoints := make(map[string]string)
	if s == "" {
		return endpoints
	}
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		endpoints[parts[0]] = parts[1]
	}
	return endpoints
}
