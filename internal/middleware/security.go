package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/modelled-needs-server/internal/domain"
)

// CorrelationIDKey is the gin context key and CorrelationIDHeader the
// header carrying the per-request id
const (
	CorrelationIDKey    = "correlation_id"
	CorrelationIDHeader = "X-Correlation-ID"
)

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("Referrer-Policy", "no-referrer")

		c.Next()
	}
}

// CorrelationID adds a unique correlation ID to each request
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		c.Next()
	}
}

// RequestTimeout bounds the request context; the pipeline and its
// database query observe the deadline
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RateLimit rejects requests beyond the configured rate with the uniform
// failure body
func RateLimit(cfg domain.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.ModelResponse{
				ModelMatch: []domain.AreaAggregate{},
				Status:     http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}

type auditEntry struct {
	Timestamp     string `json:"timestamp"`
	CorrelationID any    `json:"correlation_id"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Status        int    `json:"status"`
	Latency       string `json:"latency"`
	ClientIP      string `json:"client_ip"`
	UserAgent     string `json:"user_agent"`
	ResponseSize  int    `json:"response_size"`
}

// AuditLogger writes one JSON line per request. Request bodies are never
// logged.
func AuditLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		line, err := json.Marshal(auditEntry{
			Timestamp:     param.TimeStamp.Format(time.RFC3339),
			CorrelationID: param.Keys[CorrelationIDKey],
			Method:        param.Method,
			Path:          param.Path,
			Status:        param.StatusCode,
			Latency:       param.Latency.String(),
			ClientIP:      param.ClientIP,
			UserAgent:     param.Request.UserAgent(),
			ResponseSize:  param.BodySize,
		})
		if err != nil {
			return ""
		}
		return string(line) + "\n"
	})
}
