package domain

import (
	"context"
)

// RecordFetcher reads patient-level records for one request. Implementations
// acquire a single connection for the query and release it before returning.
type RecordFetcher interface {
	FetchPatientRecords(ctx context.Context, db DatabaseConfig, query PatientQuery) (*PatientTable, error)
}

// CredentialsProvider resolves the database credential bundle
type CredentialsProvider interface {
	Credentials(ctx context.Context) (*Credentials, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetSecretsConfig() *SecretsConfig
	GetModelConfig() *ModelConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsLocal() bool
	IsProduction() bool
}
