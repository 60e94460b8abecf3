// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	API      APIConfig
	Datasets DatasetsConfig
	Export   ExportConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Security SecurityConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
	Audit    AuditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, imports can run long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 30m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30m"`
}

// APIConfig holds settings for the remote object API.
type APIConfig struct {
	// BaseURL is the root of the object API, e.g. https://api.example.com/ (required)
	BaseURL string `env:"VIP_BASE_URL" envAlt:"LUXS_PROD_BASE_URL" required:"true"`

	// TokenURL is the OAuth2 token endpoint (required)
	TokenURL string `env:"VIP_TOKEN_URL" envAlt:"LUXS_PROD_TOKEN_URL" required:"true"`

	// ClientID is the OAuth2 client id (required)
	ClientID string `env:"VIP_CLIENT_ID" envAlt:"LUXS_PROD_CLIENT_ID" required:"true"`

	// ClientSecret is the OAuth2 client secret (required)
	ClientSecret string `env:"VIP_CLIENT_SECRET" envAlt:"LUXS_PROD_CLIENT_SECRET" required:"true"`

	// PageSize is the number of objects per page when downloading (default: 1000)
	PageSize int `env:"VIP_PAGE_SIZE" default:"1000"`

	// BatchSize is the number of objects per write request (default: 100)
	BatchSize int `env:"VIP_BATCH_SIZE" default:"100"`

	// Timeout is the per-request timeout (default: 300s)
	Timeout time.Duration `env:"VIP_TIMEOUT" default:"300s"`

	// MaxRetries is the number of attempts per batch on transient failures (default: 3)
	MaxRetries int `env:"VIP_MAX_RETRIES" default:"3"`

	// OnlyActive restricts downloads to active objects (default: true)
	OnlyActive bool `env:"VIP_ONLY_ACTIVE" default:"true"`

	// WriteMode selects the write endpoint: update (PUT) or upsert (POST) (default: update)
	WriteMode string `env:"VIP_WRITE_MODE" default:"update"`

	// FilterKey is the attribute used for complex/cluster selection on export (default: Cluster)
	FilterKey string `env:"VIP_FILTER_KEY" default:"Cluster"`
}

// DatasetsConfig holds dataset configuration storage settings.
type DatasetsConfig struct {
	// Dir is the directory containing dataset JSON files (default: config)
	Dir string `env:"DATASETS_DIR" default:"config"`

	// Watch reloads dataset files when the directory changes (default: true)
	Watch bool `env:"DATASETS_WATCH" default:"true"`
}

// ExportConfig holds workbook rendering settings.
type ExportConfig struct {
	// HighlightAllColumns marks non Ja/Nee values in every column, not only BOOLEAN ones (default: false)
	HighlightAllColumns bool `env:"EXPORT_HIGHLIGHT_ALL_COLUMNS" default:"false"`
}

// DatabaseConfig holds database connection settings.
// The database only backs the sync-run audit log and is optional.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; empty disables the audit log
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds spreadsheet upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel imports (default: 2)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// RateLimitConfig holds per-IP request limiting settings.
type RateLimitConfig struct {
	// Enabled turns the limiter on (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// Requests is the number of requests allowed per window (default: 100)
	Requests int `env:"RATE_LIMIT_REQUESTS" default:"100"`

	// Window is the limiter window (default: 1m)
	Window time.Duration `env:"RATE_LIMIT_WINDOW" default:"1m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// AuditConfig holds sync-run audit log retention settings.
type AuditConfig struct {
	// RetentionDays is how long audit entries are kept (default: 90)
	RetentionDays int `env:"AUDIT_RETENTION_DAYS" default:"90"`

	// PurgeSchedule is the cron expression for the purge job (default: daily 03:00)
	PurgeSchedule string `env:"AUDIT_PURGE_SCHEDULE" default:"0 3 * * *"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
