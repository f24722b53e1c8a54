// Package config provides centralized configuration management for the
// sanity checker. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Checker  CheckerConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP and X-Forwarded-For headers are believed
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RateLimit is requests per minute per client IP; 0 disables it (default: 60)
	RateLimit int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"60"`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// DatabaseConfig holds optional result storage settings. Results are only
// persisted when URL is set.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether result storage is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// CheckerConfig holds dataset checking settings.
type CheckerConfig struct {
	// ColumnsPath is a column configuration file. Empty uses the standard set.
	ColumnsPath string `env:"SANITY_COLUMNS"`

	// DateFormat is the default date pattern for datasets that declare none (default: YYYY-MM-DD)
	DateFormat string `env:"SANITY_DATE_FORMAT" default:"YYYY-MM-DD"`

	// Workers is the number of rows checked in parallel; 0 uses GOMAXPROCS (default: 0)
	Workers int `env:"SANITY_WORKERS" default:"0"`

	// MaxMessages caps the messages kept per run; 0 keeps all (default: 10000)
	MaxMessages int `env:"SANITY_MAX_MESSAGES" default:"10000"`

	// MaxFileSize is the maximum accepted dataset size in bytes (default: 100MB)
	MaxFileSize int64 `env:"SANITY_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of checks running at once (default: 5)
	MaxConcurrent int `env:"SANITY_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a request waits for a check slot (default: 30s)
	MaxWaitTime time.Duration `env:"SANITY_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration of a single check (default: 5m)
	Timeout time.Duration `env:"SANITY_TIMEOUT" default:"5m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
