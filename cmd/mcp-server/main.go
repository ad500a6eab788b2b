package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelled-needs-server/internal/app"
	"github.com/modelled-needs-server/internal/config"
	"github.com/modelled-needs-server/internal/mcp"
)

const version = "v0.1.0"

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

	// stdout carries the protocol
	logger := config.NewLogger(configManager.GetConfig().Logging, os.Stderr)

	components, err := app.Build(configManager, logger, nil)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	server := mcp.NewServer(components.Pipeline, components.Resolver, logger, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}

	logger.Info("Modelled needs MCP server stopped")
}
