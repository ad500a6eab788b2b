package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Secrets     SecretsConfig   `mapstructure:"secrets"`
	Model       ModelConfig     `mapstructure:"model"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents database connection configuration.
// Credentials resolved from the secrets store are layered on top of it
// per request, see WithCredentials.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WithCredentials returns a copy of the configuration using the given
// credential bundle. In local mode the host is pinned to localhost.
func (c DatabaseConfig) WithCredentials(creds *Credentials, local bool) DatabaseConfig {
	if creds == nil {
		return c
	}
	out := c
	if creds.Host != "" {
		out.Host = creds.Host
	}
	if creds.Username != "" {
		out.Username = creds.Username
	}
	if creds.Password != "" {
		out.Password = creds.Password
	}
	if local {
		out.Host = "localhost"
	}
	return out
}

// SecretsConfig describes where database credentials are resolved from
type SecretsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	SecretID         string        `mapstructure:"secret_id"`
	Region           string        `mapstructure:"region"`
	Profile          string        `mapstructure:"profile"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

// ModelConfig holds the numeric knobs of the fitting and aggregation stages
type ModelConfig struct {
	MaxIterations int     `mapstructure:"max_iterations"`
	Tolerance     float64 `mapstructure:"tolerance"`
	MinAreaSize   int     `mapstructure:"min_area_size"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RateLimitConfig bounds how many pipeline runs the HTTP surface accepts
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Credentials is the bundle stored in the secrets manager
type Credentials struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
}
