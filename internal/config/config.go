// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Source   SourceConfig
	Download DownloadConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Schedule ScheduleConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0,
	// /all holds the connection until every stage is done)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including the wait for
	// running downloads (default: 2m)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for STORE_DRIVER=postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending schema migrations on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// StoreConfig selects where records are persisted.
type StoreConfig struct {
	// Driver is postgres or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`
}

// SourceConfig describes the remote dump archive.
type SourceConfig struct {
	// BaseURL is prepended to every dump file name
	BaseURL string `env:"EDDB_BASE_URL" envAlt:"SOURCE_BASE_URL" default:"https://eddb.io/archive/v6"`

	// ResponseHeaderTimeout bounds the wait for the remote to answer (default: 60s)
	ResponseHeaderTimeout time.Duration `env:"SOURCE_RESPONSE_HEADER_TIMEOUT" default:"60s"`

	// UserAgent is sent with every fetch
	UserAgent string `env:"SOURCE_USER_AGENT" default:"eddb-ingest/1.0"`
}

// DownloadConfig holds job concurrency settings.
type DownloadConfig struct {
	// MaxConcurrent is the maximum number of parallel downloads (default: 3)
	MaxConcurrent int `env:"DOWNLOAD_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long a request waits for a download slot (default: 5s)
	MaxWaitTime time.Duration `env:"DOWNLOAD_MAX_WAIT_TIME" default:"5s"`

	// TrackedJobs is how many finished jobs /jobs remembers (default: 50)
	TrackedJobs int `env:"DOWNLOAD_TRACKED_JOBS" default:"50"`
}

// RedisConfig enables the shared in-flight guard.
type RedisConfig struct {
	// URL enables the Redis guard when set, e.g. redis://localhost:6379/0
	URL string `env:"REDIS_URL"`

	// LeaseTTL bounds how long a crashed instance can block a kind (default: 2h)
	LeaseTTL time.Duration `env:"REDIS_LEASE_TTL" default:"2h"`
}

// AuthConfig holds the basic-auth user table.
type AuthConfig struct {
	// Users is a comma-separated list of name:bcrypt-hash:clearance
	Users []string `env:"AUTH_USERS"`

	// Realm is sent in WWW-Authenticate challenges
	Realm string `env:"AUTH_REALM" default:"eddb-ingest"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// DownloadLimit is requests per minute for download triggers (default: 10)
	DownloadLimit int `env:"RATE_LIMIT_DOWNLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ScheduleConfig holds the periodic bulk refresh settings.
type ScheduleConfig struct {
	// Interval between scheduled bulk runs; 0 disables them (default: 0)
	Interval time.Duration `env:"BULK_SCHEDULE_INTERVAL" default:"0s"`

	// From is the first stage of scheduled runs (default: body)
	From string `env:"BULK_SCHEDULE_FROM"`
}

// AuthUser is one parsed entry of AUTH_USERS.
type AuthUser struct {
	Name      string
	Hash      string
	Clearance int
}

// ParseUsers splits AUTH_USERS entries. Bcrypt hashes contain '$' but never
// ':', so the first and last colons delimit the hash.
func (c AuthConfig) ParseUsers() ([]AuthUser, error) {
	users := make([]AuthUser, 0, len(c.Users))
	seen := make(map[string]bool, len(c.Users))

	for _, entry := range c.Users {
		first := strings.Index(entry, ":")
		last := strings.LastIndex(entry, ":")
		if first <= 0 || last == first || last == len(entry)-1 {
			return nil, fmt.Errorf("AUTH_USERS entry %q: want name:hash:clearance", maskEntry(entry))
		}

		name := entry[:first]
		clearance, err := strconv.Atoi(entry[last+1:])
		if err != nil {
			return nil, fmt.Errorf("AUTH_USERS entry for %q: invalid clearance: %w", name, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("AUTH_USERS entry for %q: duplicate user", name)
		}
		seen[name] = true

		users = append(users, AuthUser{
			Name:      name,
			Hash:      entry[first+1 : last],
			Clearance: clearance,
		})
	}
	return users, nil
}

func maskEntry(entry string) string {
	if i := strings.Index(entry, ":"); i > 0 {
		return entry[:i] + ":…"
	}
	return "…"
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
