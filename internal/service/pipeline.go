package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/glm"
	"github.com/modelled-needs-server/internal/lookup"
	"github.com/modelled-needs-server/internal/metrics"
)

// Pipeline stages, used in logs, errors and metrics
const (
	StageDecode      = "decode"
	StageValidate    = "validate"
	StageResolve     = "resolve"
	StageCredentials = "credentials"
	StageFetch       = "fetch"
	StageFormat      = "format"
	StageFit         = "fit"
	StageCompare     = "compare"
)

// Pipeline runs one modelled-needs request from lookup to area aggregates
type Pipeline struct {
	logger      *logrus.Logger
	resolver    *lookup.Resolver
	fetcher     domain.RecordFetcher
	credentials domain.CredentialsProvider
	database    domain.DatabaseConfig
	local       bool
	fitter      *ModelFitter
	comparator  *Comparator
	metrics     *metrics.Metrics
}

// PipelineOption is a functional option for Pipeline
type PipelineOption func(*Pipeline)

// WithCredentialsProvider resolves database credentials before each fetch
func WithCredentialsProvider(provider domain.CredentialsProvider) PipelineOption {
	return func(p *Pipeline) {
		p.credentials = provider
	}
}

// WithLocalMode pins the database host to localhost
func WithLocalMode(local bool) PipelineOption {
	return func(p *Pipeline) {
		p.local = local
	}
}

// WithModelConfig sets the solver and aggregation parameters
func WithModelConfig(cfg domain.ModelConfig) PipelineOption {
	return func(p *Pipeline) {
		glmCfg := glm.DefaultConfig()
		if cfg.MaxIterations > 0 {
			glmCfg.MaxIterations = cfg.MaxIterations
		}
		if cfg.Tolerance > 0 {
			glmCfg.Tolerance = cfg.Tolerance
		}
		p.fitter = NewModelFitter(p.logger, glmCfg)
		p.comparator = NewComparator(cfg.MinAreaSize)
	}
}

// WithMetrics records run outcomes and stage durations
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline reading from fetcher with the given base
// database configuration
func NewPipeline(logger *logrus.Logger, resolver *lookup.Resolver, fetcher domain.RecordFetcher, database domain.DatabaseConfig, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		logger:     logger,
		resolver:   resolver,
		fetcher:    fetcher,
		database:   database,
		fitter:     NewModelFitter(logger, nil),
		comparator: NewComparator(DefaultMinAreaSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleJSON decodes a raw request body and runs it through Handle. A body
// that cannot be decoded gets the uniform failure response.
func (p *Pipeline) HandleJSON(ctx context.Context, body []byte, requestID string) domain.ModelResponse {
	var req domain.ModelRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return p.fail(domain.NewPipelineError(StageDecode, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput), requestID))
	}
	return p.Handle(ctx, req, requestID)
}

// Handle is the fault boundary: every failure, including a panic inside
// the pipeline, is logged and reported as an empty 500 response.
func (p *Pipeline) Handle(ctx context.Context, req domain.ModelRequest, requestID string) (resp domain.ModelResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = p.fail(domain.NewPipelineError("panic", fmt.Errorf("%v", r), requestID))
		}
	}()

	started := time.Now()
	areas, stage, err := p.run(ctx, req)
	if err != nil {
		return p.fail(domain.NewPipelineError(stage, err, requestID))
	}

	p.metrics.RecordOutcome("", len(areas))
	p.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"areas":      len(areas),
		"duration":   time.Since(started),
	}).Info("Modelled needs request completed")

	return domain.ModelResponse{ModelMatch: areas, Status: http.StatusOK}
}

// Run executes the pipeline and returns the area aggregates
func (p *Pipeline) Run(ctx context.Context, req domain.ModelRequest) ([]domain.AreaAggregate, error) {
	areas, _, err := p.run(ctx, req)
	return areas, err
}

func (p *Pipeline) fail(perr *domain.PipelineError) domain.ModelResponse {
	p.metrics.RecordOutcome(perr.Code, 0)
	p.logger.WithFields(logrus.Fields{
		"request_id": perr.RequestID,
		"code":       perr.Code,
		"stage":      perr.Stage,
		"error":      perr.Message,
	}).Error("Modelled needs request failed")

	return domain.ModelResponse{ModelMatch: []domain.AreaAggregate{}, Status: http.StatusInternalServerError}
}

func (p *Pipeline) run(ctx context.Context, req domain.ModelRequest) ([]domain.AreaAggregate, string, error) {
	if err := req.Normalize(); err != nil {
		return nil, StageValidate, err
	}

	started := time.Now()
	plan, err := p.resolve(req)
	if err != nil {
		return nil, StageResolve, err
	}
	p.metrics.ObserveStage(StageResolve, started)

	dbConfig := p.database
	if p.credentials != nil {
		started = time.Now()
		creds, err := p.credentials.Credentials(ctx)
		if err != nil {
			return nil, StageCredentials, fmt.Errorf("resolving database credentials: %v: %w", err, domain.ErrInfrastructure)
		}
		dbConfig = dbConfig.WithCredentials(creds, p.local)
		p.metrics.ObserveStage(StageCredentials, started)
	} else if p.local {
		dbConfig.Host = "localhost"
	}

	started = time.Now()
	table, err := p.fetcher.FetchPatientRecords(ctx, dbConfig, domain.PatientQuery{
		Columns:     plan.columns,
		FilterAreas: req.FilterAreas,
	})
	if err != nil {
		return nil, StageFetch, err
	}
	p.metrics.ObserveStage(StageFetch, started)

	started = time.Now()
	formatted, err := FormatGLMData(table, plan.areaLevel, plan.responses, req.AgeAsAFactor)
	if err != nil {
		return nil, StageFormat, err
	}
	p.metrics.ObserveStage(StageFormat, started)

	started = time.Now()
	model, err := p.fitter.Fit(formatted, req.TrainAreas, plan.areaLevel, plan.predictors)
	if err != nil {
		return nil, StageFit, err
	}
	p.metrics.ObserveStage(StageFit, started)

	p.logger.Info("Running logistic model...")
	started = time.Now()
	areas, err := p.comparator.Compare(formatted, LogisticScoring{Model: model})
	if err != nil {
		return nil, StageCompare, err
	}
	p.metrics.ObserveStage(StageCompare, started)

	return areas, "", nil
}

type queryPlan struct {
	areaLevel  string
	responses  []string
	predictors []string
	columns    []string
}

func (p *Pipeline) resolve(req domain.ModelRequest) (*queryPlan, error) {
	areaLevel, err := p.resolver.Area(req.AreaLevel)
	if err != nil {
		return nil, err
	}

	responses := p.resolver.Conditions(req.ResponseFilter1, req.ResponseFilter2)

	var predictors []string
	seen := map[string]bool{}
	for _, res := range p.resolver.Predictors(req.Predictors) {
		if !res.Found {
			p.logger.WithField("predictor", res.Name).Warn("Predictor not found in lookup, dropping it")
			continue
		}
		if !seen[res.ID] {
			seen[res.ID] = true
			predictors = append(predictors, res.ID)
		}
	}
	if len(predictors) == 0 {
		return nil, fmt.Errorf("none of the predictors %v are known: %w", req.Predictors, domain.ErrLookupMiss)
	}

	columns := uniqueColumns(responses, predictors, []string{areaLevel}, secondaryAreaColumns(areaLevel))

	p.logger.WithFields(logrus.Fields{
		"area_level": areaLevel,
		"responses":  responses,
		"predictors": predictors,
	}).Debug("Resolved request names")

	return &queryPlan{
		areaLevel:  areaLevel,
		responses:  responses,
		predictors: predictors,
		columns:    columns,
	}, nil
}

// secondaryAreaColumns lists the area fields the training filter compares
// against, other than the output area itself
func secondaryAreaColumns(areaLevel string) []string {
	var out []string
	for _, c := range []string{NetworkField, CCGField} {
		if c != areaLevel {
			out = append(out, c)
		}
	}
	return out
}

func uniqueColumns(groups ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, g := range groups {
		for _, c := range g {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
