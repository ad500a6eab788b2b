// Package secrets resolves database credentials from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/modelled-needs-server/internal/domain"
)

// Defaults applied when the configuration leaves a field empty
const (
	DefaultSecretID         = "postgres"
	DefaultCacheTTL         = 5 * time.Minute
	DefaultFailureThreshold = 3
	DefaultBreakerTimeout   = 30 * time.Second
)

// ErrMalformedSecret is returned when the secret is not a credential bundle
var ErrMalformedSecret = errors.New("malformed credential secret")

// ManagerProvider reads the credential bundle from Secrets Manager. Bundles
// are cached for CacheTTL and calls go through a circuit breaker.
type ManagerProvider struct {
	client   secretsmanageriface.SecretsManagerAPI
	secretID string
	cache    *expirable.LRU[string, *domain.Credentials]
	breaker  *gobreaker.CircuitBreaker
	log      *logrus.Logger
}

// NewManagerProvider creates a provider backed by a new AWS session
func NewManagerProvider(cfg domain.SecretsConfig, logger *logrus.Logger) (*ManagerProvider, error) {
	opts := session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Profile:           cfg.Profile,
	}
	if cfg.Region != "" {
		opts.Config = aws.Config{Region: aws.String(cfg.Region)}
	}
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return NewManagerProviderWithClient(secretsmanager.New(sess), cfg, logger), nil
}

// NewManagerProviderWithClient creates a provider around an existing client
func NewManagerProviderWithClient(client secretsmanageriface.SecretsManagerAPI, cfg domain.SecretsConfig, logger *logrus.Logger) *ManagerProvider {
	secretID := cfg.SecretID
	if secretID == "" {
		secretID = DefaultSecretID
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "SecretsManager",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from,
				"to_state":        to,
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ManagerProvider{
		client:   client,
		secretID: secretID,
		cache:    expirable.NewLRU[string, *domain.Credentials](4, nil, ttl),
		breaker:  breaker,
		log:      logger,
	}
}

// Credentials implements domain.CredentialsProvider
func (p *ManagerProvider) Credentials(ctx context.Context) (*domain.Credentials, error) {
	if creds, ok := p.cache.Get(p.secretID); ok {
		return creds, nil
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		out, err := p.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(p.secretID),
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"secret_id": p.secretID,
			"error":     err,
		}).Error("Failed to read database credentials")
		return nil, fmt.Errorf("reading secret %q: %w", p.secretID, err)
	}

	creds, err := ParseCredentials(result.(*secretsmanager.GetSecretValueOutput))
	if err != nil {
		return nil, err
	}

	p.cache.Add(p.secretID, creds)
	p.log.WithField("secret_id", p.secretID).Debug("Database credentials refreshed")
	return creds, nil
}

// Invalidate drops the cached bundle so the next call reads the secret again
func (p *ManagerProvider) Invalidate() {
	p.cache.Purge()
}

// ParseCredentials decodes the JSON credential bundle of a secret value
func ParseCredentials(out *secretsmanager.GetSecretValueOutput) (*domain.Credentials, error) {
	if out == nil || out.SecretString == nil {
		return nil, fmt.Errorf("%w: secret has no string value", ErrMalformedSecret)
	}
	var creds domain.Credentials
	if err := json.Unmarshal([]byte(aws.StringValue(out.SecretString)), &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
	if creds.Username == "" {
		return nil, fmt.Errorf("%w: username is empty", ErrMalformedSecret)
	}
	return &creds, nil
}

// StaticProvider serves a fixed bundle, typically from configuration
type StaticProvider struct {
	creds domain.Credentials
}

// NewStaticProvider creates a provider from the configured database fields
func NewStaticProvider(db domain.DatabaseConfig) *StaticProvider {
	return &StaticProvider{creds: domain.Credentials{
		Host:     db.Host,
		Username: db.Username,
		Password: db.Password,
	}}
}

// Credentials implements domain.CredentialsProvider
func (p *StaticProvider) Credentials(context.Context) (*domain.Credentials, error) {
	creds := p.creds
	return &creds, nil
}

// NewProvider picks Secrets Manager when enabled and the static
// configuration otherwise
func NewProvider(cfg domain.SecretsConfig, db domain.DatabaseConfig, logger *logrus.Logger) (domain.CredentialsProvider, error) {
	if !cfg.Enabled {
		return NewStaticProvider(db), nil
	}
	p, err := NewManagerProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}
