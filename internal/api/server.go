package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/lookup"
	"github.com/modelled-needs-server/internal/middleware"
	"github.com/modelled-needs-server/internal/service"
)

// maxBodyBytes caps the size of a request body
const maxBodyBytes = 1 << 20

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP surface serves
type Dependencies struct {
	Pipeline *service.Pipeline
	Resolver *lookup.Resolver
	Database HealthChecker
	Gatherer prometheus.Gatherer
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())

	server := &Server{
		configManager: configManager,
		deps:          deps,
		router:        router,
	}
	server.setupRoutes(cfg)

	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes(cfg *domain.Config) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/lookups", s.handleLookups)
		v1.POST("/modelled-needs",
			middleware.RateLimit(cfg.RateLimit),
			middleware.RequestTimeout(cfg.Server.WriteTimeout),
			s.handleModelledNeeds)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

// handleReady checks the database when a health pool is configured
func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Database == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "database": "not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := s.deps.Database.Health(ctx); err != nil {
		s.deps.Logger.WithError(err).Warn("Readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "database": "ok"})
}

func (s *Server) handleLookups(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Resolver.Tables())
}

// handleModelledNeeds runs the pipeline; the HTTP status mirrors the
// status field of the body
func (s *Server) handleModelledNeeds(c *gin.Context) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.deps.Logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err,
		}).Error("Failed to read request body")
		c.JSON(http.StatusInternalServerError, domain.ModelResponse{
			ModelMatch: []domain.AreaAggregate{},
			Status:     http.StatusInternalServerError,
		})
		return
	}

	resp := s.deps.Pipeline.HandleJSON(c.Request.Context(), body, requestID)
	c.JSON(resp.Status, resp)
}
