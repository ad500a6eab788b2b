// Package mcp exposes the modelled-needs pipeline as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/lookup"
	"github.com/modelled-needs-server/internal/service"
)

// Tool names
const (
	ToolModelledNeeds = "modelled_needs"
	ToolListLookups   = "list_lookups"
)

// ModelledNeedsInput mirrors the HTTP request body. Every field is optional
// at the schema level so missing keys reach the pipeline and fail there
// with the uniform response.
type ModelledNeedsInput struct {
	ResponseFilter1 string   `json:"response_filter_1,omitempty" jsonschema:"long-term condition to model, by full name"`
	ResponseFilter2 string   `json:"response_filter_2,omitempty" jsonschema:"optional second condition; both must be present"`
	Predictors      []string `json:"predictors,omitempty" jsonschema:"predictor full names such as Age or Sex"`
	AreaLevel       string   `json:"area_level,omitempty" jsonschema:"output area granularity, GP Practice by default"`
	FilterAreas     []string `json:"filter_areas,omitempty" jsonschema:"CCG codes restricting the population; empty for all"`
	TrainAreas      []string `json:"train_areas,omitempty" jsonschema:"PCN or CCG names whose patients train the model"`
	AgeAsAFactor    string   `json:"age_as_a_factor,omitempty" jsonschema:"Y to band age into five-year groups"`
}

func (in ModelledNeedsInput) request() domain.ModelRequest {
	return domain.ModelRequest{
		ResponseFilter1: in.ResponseFilter1,
		ResponseFilter2: in.ResponseFilter2,
		Predictors:      in.Predictors,
		AreaLevel:       in.AreaLevel,
		FilterAreas:     in.FilterAreas,
		TrainAreas:      in.TrainAreas,
		AgeAsAFactor:    in.AgeAsAFactor,
	}
}

// ListLookupsInput takes no arguments
type ListLookupsInput struct{}

// Server wraps the MCP SDK server
type Server struct {
	mcpServer *mcp.Server
	pipeline  *service.Pipeline
	resolver  *lookup.Resolver
	logger    *logrus.Logger
}

// NewServer creates the MCP server and registers its tools
func NewServer(pipeline *service.Pipeline, resolver *lookup.Resolver, logger *logrus.Logger, version string) *Server {
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    "modelled-needs-server",
			Version: version,
		}, nil),
		pipeline: pipeline,
		resolver: resolver,
		logger:   logger,
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolModelledNeeds,
		Description: "Fit a logistic model of a long-term condition on patient predictors and compare " +
			"expected with observed prevalence per area, with 95% bounds and a significance verdict.",
	}, s.handleModelledNeeds)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListLookups,
		Description: "List the condition, area level and predictor names accepted by modelled_needs.",
	}, s.handleListLookups)

	logger.WithField("tool_count", 2).Info("Registered MCP tools")
	return s
}

// Start serves the protocol on stdin/stdout until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting modelled needs MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// handleModelledNeeds returns the response body as JSON text. A failed run
// is still a successful tool call carrying status 500 in its body.
func (s *Server) handleModelledNeeds(ctx context.Context, _ *mcp.CallToolRequest, in ModelledNeedsInput) (*mcp.CallToolResult, any, error) {
	requestID := uuid.New().String()
	resp := s.pipeline.Handle(ctx, in.request(), requestID)

	result, err := jsonResult(resp)
	if err != nil {
		return nil, nil, err
	}
	result.IsError = resp.Status != 200
	return result, nil, nil
}

func (s *Server) handleListLookups(context.Context, *mcp.CallToolRequest, ListLookupsInput) (*mcp.CallToolResult, any, error) {
	result, err := jsonResult(s.resolver.Tables())
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil
}
