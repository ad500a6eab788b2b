package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/modelled-needs-server/internal/database"
	"github.com/modelled-needs-server/internal/domain"
)

// EnvPrefix is prepended to every environment variable, e.g.
// MODELLED_NEEDS_DATABASE_HOST
const EnvPrefix = "MODELLED_NEEDS"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. configFile may be empty,
// in which case config.yaml is searched for in the usual places.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/modelled-needs/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "population")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("secrets.enabled", false)
	v.SetDefault("secrets.secret_id", "postgres")
	v.SetDefault("secrets.region", "eu-west-2")
	v.SetDefault("secrets.profile", "")
	v.SetDefault("secrets.cache_ttl", "5m")
	v.SetDefault("secrets.failure_threshold", 3)
	v.SetDefault("secrets.breaker_timeout", "30s")

	v.SetDefault("model.max_iterations", 100)
	v.SetDefault("model.tolerance", 1e-8)
	v.SetDefault("model.min_area_size", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 2)
	v.SetDefault("rate_limit.burst", 4)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetSecretsConfig returns the credential source configuration
func (m *Manager) GetSecretsConfig() *domain.SecretsConfig {
	return &m.config.Secrets
}

// GetModelConfig returns the fitting and aggregation parameters
func (m *Manager) GetModelConfig() *domain.ModelConfig {
	return &m.config.Model
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Port <= 0 || config.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", config.Database.Port)
	}
	if !config.Secrets.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required when secrets are disabled")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required when secrets are disabled")
		}
	} else if config.Secrets.SecretID == "" {
		return fmt.Errorf("secret id is required when secrets are enabled")
	}

	if config.Model.MaxIterations <= 0 {
		return fmt.Errorf("model max_iterations must be positive: %d", config.Model.MaxIterations)
	}
	if config.Model.Tolerance <= 0 {
		return fmt.Errorf("model tolerance must be positive: %g", config.Model.Tolerance)
	}
	if config.Model.MinAreaSize < 0 {
		return fmt.Errorf("model min_area_size cannot be negative: %d", config.Model.MinAreaSize)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit requests_per_second must be positive when enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns the configured database URL
func (m *Manager) GetDatabaseConnectionString() string {
	return database.ConnectionString(m.config.Database)
}

// IsLocal reports whether the database host is pinned to localhost
func (m *Manager) IsLocal() bool {
	return strings.EqualFold(m.config.Environment, "local")
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.EqualFold(m.config.Environment, "production")
}
