package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/lookup"
	"github.com/modelled-needs-server/internal/metrics"
	"github.com/modelled-needs-server/internal/middleware"
	"github.com/modelled-needs-server/internal/service"
)

type stubConfig struct {
	domain.ConfigManager
	cfg *domain.Config
}

func (s stubConfig) GetConfig() *domain.Config             { return s.cfg }
func (s stubConfig) GetServerConfig() *domain.ServerConfig { return &s.cfg.Server }

type stubFetcher struct {
	table *domain.PatientTable
	err   error
}

func (f stubFetcher) FetchPatientRecords(context.Context, domain.DatabaseConfig, domain.PatientQuery) (*domain.PatientTable, error) {
	return f.table, f.err
}

type stubHealth struct{ err error }

func (h stubHealth) Health(context.Context) error { return h.err }

// patientTable has two practices of 20 patients
func patientTable() *domain.PatientTable {
	table := &domain.PatientTable{Columns: []string{"chd", "age", "sex", "gpp_name", "pcn", "ccg"}}
	for i := 0; i < 40; i++ {
		sex := "F"
		if i%2 == 1 {
			sex = "M"
		}
		chd := int64(0)
		if i%4 == 0 || i%7 == 0 {
			chd = 1
		}
		table.Rows = append(table.Rows, []any{chd, int64(30 + (i%10)*5), sex, fmt.Sprintf("P%d", i/20+1), "N1", "00Q"})
	}
	return table
}

func newTestServer(t *testing.T, fetcher domain.RecordFetcher, health HealthChecker, rl domain.RateLimitConfig) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	reg := prometheus.NewRegistry()
	resolver := lookup.NewResolver()
	pipeline := service.NewPipeline(logger, resolver, fetcher, domain.DatabaseConfig{},
		service.WithMetrics(metrics.New(reg)))

	cfg := &domain.Config{
		Server:    domain.ServerConfig{Port: 8080},
		Logging:   domain.LoggingConfig{Level: "info"},
		RateLimit: rl,
	}
	return NewServer(stubConfig{cfg: cfg}, Dependencies{
		Pipeline: pipeline,
		Resolver: resolver,
		Database: health,
		Gatherer: reg,
		Logger:   logger,
	})
}

func post(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/modelled-needs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestModelledNeedsEndpoint(t *testing.T) {
	s := newTestServer(t, stubFetcher{table: patientTable()}, nil, domain.RateLimitConfig{})

	w := post(s, `{
		"response_filter_1": "Coronary Heart Disease",
		"predictors": ["Age", "Sex"],
		"area_level": "GP Practice",
		"filter_areas": ["00Q"]
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.CorrelationIDHeader))

	var resp struct {
		ModelMatch []map[string]any `json:"model_match"`
		Status     int              `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.Status)
	require.Len(t, resp.ModelMatch, 2)
	for _, row := range resp.ModelMatch {
		for _, key := range []string{
			"area_var", "expected", "observed", "match_ratio", "chi_square", "match_lower",
			"match_higher", "expected_lower", "expected_higher", "significant", "significance",
		} {
			assert.Contains(t, row, key)
		}
	}
}

func TestModelledNeedsEndpoint_Failures(t *testing.T) {
	tests := []struct {
		name    string
		fetcher domain.RecordFetcher
		body    string
	}{
		{"Malformed body", stubFetcher{}, `not json`},
		{"Missing predictors", stubFetcher{}, `{"response_filter_1": "Diabetes", "filter_areas": []}`},
		{"Database failure", stubFetcher{err: fmt.Errorf("timeout: %w", domain.ErrInfrastructure)},
			`{"response_filter_1": "Diabetes", "predictors": ["Age"], "filter_areas": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.fetcher, nil, domain.RateLimitConfig{})
			w := post(s, tt.body)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.JSONEq(t, `{"model_match": [], "status": 500}`, w.Body.String())
		})
	}
}

func TestModelledNeedsEndpoint_RateLimited(t *testing.T) {
	s := newTestServer(t, stubFetcher{}, nil, domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1})

	post(s, `{}`)
	w := post(s, `{}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		s := newTestServer(t, stubFetcher{}, nil, domain.RateLimitConfig{})
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "healthy")
	})

	t.Run("Ready", func(t *testing.T) {
		s := newTestServer(t, stubFetcher{}, stubHealth{}, domain.RateLimitConfig{})
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Database down", func(t *testing.T) {
		s := newTestServer(t, stubFetcher{}, stubHealth{err: errors.New("refused")}, domain.RateLimitConfig{})
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestLookupsAndMetrics(t *testing.T) {
	s := newTestServer(t, stubFetcher{}, nil, domain.RateLimitConfig{})
	post(s, `{}`)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/lookups", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var tables map[string][]lookup.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tables))
	assert.Contains(t, tables["areas"], lookup.Entry{FullName: "GP Practice", ShortName: "gpp_name"})

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte(`modelled_needs_pipeline_runs_total{outcome="INVALID_INPUT"} 1`)))
}
