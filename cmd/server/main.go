package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/modelled-needs-server/internal/api"
	"github.com/modelled-needs-server/internal/app"
	"github.com/modelled-needs-server/internal/config"
	"github.com/modelled-needs-server/internal/database"
)

func main() {
	configFile := flag.String("config", "", "path to a config file")
	flag.Parse()

	configManager, err := config.NewManager(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging, os.Stdout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	components, err := app.Build(configManager, logger, reg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The readiness pool is optional: without static credentials the
	// database is only reachable once a request resolves them.
	var health api.HealthChecker
	if !cfg.Secrets.Enabled {
		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Warn("Readiness pool unavailable, /ready will report not configured")
		} else {
			defer db.Close()
			health = db
		}
	}

	server := api.NewServer(configManager, api.Dependencies{
		Pipeline: components.Pipeline,
		Resolver: components.Resolver,
		Database: health,
		Gatherer: reg,
		Logger:   logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithField("port", cfg.Server.Port).Info("Starting modelled needs HTTP server")
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}
