// Package app wires configuration into a ready pipeline for the binaries.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/lookup"
	"github.com/modelled-needs-server/internal/metrics"
	"github.com/modelled-needs-server/internal/repository"
	"github.com/modelled-needs-server/internal/secrets"
	"github.com/modelled-needs-server/internal/service"
)

// Components are the shared collaborators of every entry point
type Components struct {
	Resolver *lookup.Resolver
	Pipeline *service.Pipeline
	Metrics  *metrics.Metrics
}

// Build creates the pipeline described by the configuration. reg may be
// nil when metrics are not exported.
func Build(cm domain.ConfigManager, logger *logrus.Logger, reg prometheus.Registerer) (*Components, error) {
	cfg := cm.GetConfig()

	creds, err := secrets.NewProvider(cfg.Secrets, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("creating credentials provider: %w", err)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	resolver := lookup.NewResolver()
	pipeline := service.NewPipeline(logger, resolver, repository.NewPatientRepository(logger), cfg.Database,
		service.WithCredentialsProvider(creds),
		service.WithLocalMode(cm.IsLocal()),
		service.WithModelConfig(cfg.Model),
		service.WithMetrics(m),
	)

	logger.WithFields(logrus.Fields{
		"environment":     cfg.Environment,
		"secrets_enabled": cfg.Secrets.Enabled,
		"local":           cm.IsLocal(),
	}).Info("Pipeline initialized")

	return &Components{
		Resolver: resolver,
		Pipeline: pipeline,
		Metrics:  m,
	}, nil
}
