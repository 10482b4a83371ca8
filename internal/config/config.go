// Package config loads and validates migration runner config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3/lock"
	"github.com/spf13/viper"
)

// Config holds migration runner configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the connection string of the target database (postgres://... or sqlite://...).
	// It has no default; the runner rejects an empty value.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MigrationsDir is the directory migration scripts are resolved against.
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
	// MigrationFile is the script name inside MigrationsDir applied when no file is given on the command line.
	MigrationFile string `mapstructure:"MIGRATION_FILE"`
	// MigrationTimeout bounds script execution (e.g. "5m").
	MigrationTimeout string `mapstructure:"MIGRATION_TIMEOUT"`
	// MigrationLock takes a Postgres advisory lock for the duration of the run so two runners cannot interleave.
	MigrationLock bool `mapstructure:"MIGRATION_LOCK"`
	// MigrationLockID is the advisory lock key shared by all runners against the same database.
	MigrationLockID int64 `mapstructure:"MIGRATION_LOCK_ID"`
	// Env is the application environment (e.g. "development", "production"); recorded on telemetry.
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). An empty endpoint yields no-op providers.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// LokiURL, when set, receives one log line per run (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When set, each run's event is also written to TelemetryKafkaTopic.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for run events (default soc-migrate-telemetry).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
// DATABASE_URL is not validated here; the runner owns that check so it is reported as a configuration error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATIONS_DIR", filepath.Join("drizzle", "migrations"))
	v.SetDefault("MIGRATION_FILE", "0001_chiang_rai_module.sql")
	v.SetDefault("MIGRATION_TIMEOUT", "5m")
	v.SetDefault("MIGRATION_LOCK", true)
	v.SetDefault("MIGRATION_LOCK_ID", lock.DefaultLockID)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_SERVICE_NAME", "soc-migrate")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "soc-migrate-telemetry")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the optional settings. It is called by Load and may be called again after flag overrides.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MigrationsDir) == "" {
		return errors.New("config: MIGRATIONS_DIR must not be empty")
	}
	d, err := time.ParseDuration(c.MigrationTimeout)
	if err != nil {
		return errors.New("config: MIGRATION_TIMEOUT must be a duration such as 30s or 5m")
	}
	if d <= 0 {
		return errors.New("config: MIGRATION_TIMEOUT must be positive")
	}
	if c.MigrationLock && c.MigrationLockID == 0 {
		return errors.New("config: MIGRATION_LOCK_ID must be non-zero when MIGRATION_LOCK is enabled")
	}
	return nil
}

// ExecTimeout parses MigrationTimeout. Returns 5m if unset or invalid.
func (c *Config) ExecTimeout() time.Duration {
	d, err := time.ParseDuration(c.MigrationTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
