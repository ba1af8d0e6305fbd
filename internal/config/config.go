// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Import    ImportConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Scheduler SchedulerConfig
	Events    EventsConfig
	Backend   BackendConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// CORSOrigins is a comma-separated list of allowed origins (default: *)
	CORSOrigins []string `env:"CORS_ORIGINS" default:"*"`
}

// StorageConfig selects and tunes the snapshot backend.
type StorageConfig struct {
	// Backend is one of memory, file, postgres, redis, sqlite (default: file)
	Backend string `env:"STORAGE_BACKEND" default:"file"`

	// Key is the storage key of the snapshot
	Key string `env:"STORAGE_KEY" default:"gray_transit_imported_data"`

	// BudgetBytes is the size above which the full snapshot is downgraded (default: 5MB)
	BudgetBytes int `env:"STORAGE_BUDGET_BYTES" default:"5242880"`

	// CompactThreshold is the record count above which a compact snapshot is tried (default: 10000)
	CompactThreshold int `env:"STORAGE_COMPACT_THRESHOLD" default:"10000"`

	// SampleSize is the number of records kept in a compact snapshot (default: 100)
	SampleSize int `env:"STORAGE_SAMPLE_SIZE" default:"100"`

	// IOTimeout bounds each backend read or write (default: 10s)
	IOTimeout time.Duration `env:"STORAGE_IO_TIMEOUT" default:"10s"`

	// QuotaBytes rejects writes above this size, like browser storage (default: 0, disabled)
	QuotaBytes int `env:"STORAGE_QUOTA_BYTES" default:"0"`

	// Dir is the directory of the file backend
	Dir string `env:"STORAGE_DIR" default:"./data"`

	// DatabaseURL is the PostgreSQL connection string of the postgres backend
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// RedisAddr is host:port of the redis backend
	RedisAddr string `env:"REDIS_ADDR" default:"localhost:6379"`

	// RedisPassword is the optional redis password
	RedisPassword string `env:"REDIS_PASSWORD"`

	// RedisDB is the redis database number (default: 0)
	RedisDB int `env:"REDIS_DB" default:"0"`

	// SQLitePath is the database file of the sqlite backend
	SQLitePath string `env:"SQLITE_PATH" default:"./data/transitwatch.db"`
}

// ImportConfig holds CSV import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 500MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"524288000"`

	// MinFileSize is the minimum file size in bytes (default: 100)
	MinFileSize int64 `env:"IMPORT_MIN_FILE_SIZE" default:"100"`

	// MaxConcurrent is the maximum number of parallel imports (default: 3)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a background import (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// DefaultMode is used when a request names no mode (default: replace)
	DefaultMode string `env:"IMPORT_DEFAULT_MODE" default:"replace"`

	// MaxReportedErrors caps the row errors returned per import (default: 50)
	MaxReportedErrors int `env:"IMPORT_MAX_REPORTED_ERRORS" default:"50"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of label:key pairs
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SchedulerConfig holds the background persistence job settings.
type SchedulerConfig struct {
	// Enabled controls whether the re-persist job runs (default: true)
	Enabled bool `env:"SCHEDULER_ENABLED" default:"true"`

	// PersistSpec is the cron spec of the re-persist job (default: @every 5m)
	PersistSpec string `env:"SCHEDULER_PERSIST_SPEC" default:"@every 5m"`
}

// EventsConfig configures the external event sinks. Empty values disable a sink.
type EventsConfig struct {
	// MQTTBroker is the broker URL, e.g. tcp://localhost:1883
	MQTTBroker string `env:"MQTT_BROKER"`

	// MQTTTopic is the topic store events are published to
	MQTTTopic string `env:"MQTT_TOPIC" default:"transitwatch/events"`

	// MQTTClientID identifies this process to the broker
	MQTTClientID string `env:"MQTT_CLIENT_ID" default:"transitwatch"`

	// KafkaBrokers is a comma-separated list of broker addresses
	KafkaBrokers []string `env:"KAFKA_BROKERS"`

	// KafkaTopic is the topic store events are written to
	KafkaTopic string `env:"KAFKA_TOPIC" default:"transitwatch.events"`
}

// BackendConfig configures the reference backend facade.
type BackendConfig struct {
	// BaseURL is the backend API root (default: http://localhost:8000/api)
	BaseURL string `env:"BACKEND_BASE_URL" default:"http://localhost:8000/api"`

	// Timeout bounds one backend request before falling back to fixtures (default: 5s)
	Timeout time.Duration `env:"BACKEND_TIMEOUT" default:"5s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
