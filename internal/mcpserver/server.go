// Package mcpserver exposes the analysis service as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ShayCichocki/rlm/internal/analysis"
	"github.com/ShayCichocki/rlm/internal/orchestrator"
	"github.com/ShayCichocki/rlm/internal/staleness"
)

// ServerName is reported to MCP clients.
const ServerName = "rlm"

// Server is the rlm MCP tool server.
type Server struct {
	svc    *analysis.Service
	server *mcp.Server
	logger *slog.Logger
}

// New creates a server with the rlm tools registered.
func New(svc *analysis.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		server: mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{Name: "rlm_analyze", Description: analyzeDescription}, s.analyze)
	mcp.AddTool(s.server, &mcp.Tool{Name: "rlm_check_freshness", Description: freshnessDescription}, s.freshness)
	mcp.AddTool(s.server, &mcp.Tool{Name: "rlm_status", Description: statusDescription}, s.status)
	mcp.AddTool(s.server, &mcp.Tool{Name: "rlm_search_rag", Description: searchDescription}, s.search)
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves over stdin/stdout until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "work_dir", s.svc.WorkDir())
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) analyze(ctx context.Context, _ *mcp.CallToolRequest, args AnalyzeArgs) (*mcp.CallToolResult, any, error) {
	if !validFocus[args.Focus] {
		return nil, nil, fmt.Errorf("unknown focus %q", args.Focus)
	}
	s.logger.Info("tool call", "tool", "rlm_analyze", "path", args.Path, "force", args.ForceRefresh)

	resp, err := s.svc.Analyze(ctx, analysis.Request{
		Path:         args.Path,
		Query:        args.Query,
		Focus:        args.Focus,
		ForceRefresh: args.ForceRefresh,
	})
	if err != nil {
		var ce *orchestrator.CeilingError
		if errors.As(err, &ce) {
			// The run is checkpointed; a later call resumes it.
			return result(map[string]any{
				"success":    false,
				"error":      err.Error(),
				"kind":       "ceiling",
				"resumable":  true,
				"depth":      ce.Depth,
				"iterations": ce.Iterations,
				"limit":      ce.Limit,
			}, true)
		}
		return nil, nil, err
	}
	return result(resp, !resp.Success)
}

func (s *Server) freshness(ctx context.Context, _ *mcp.CallToolRequest, args FreshnessArgs) (*mcp.CallToolResult, any, error) {
	report, err := s.svc.Freshness(ctx, args.Path)
	if err != nil {
		return nil, nil, err
	}
	return result(FreshnessOutput{
		Fresh:     !report.Stale,
		Message:   freshnessMessage(report),
		Staleness: report,
	}, false)
}

func freshnessMessage(r *staleness.Report) string {
	switch {
	case r.Reason == staleness.ReasonNoData:
		return "No previous analysis found for this path."
	case r.Stale:
		return fmt.Sprintf("Data is stale (%s). %s.", r.Summary(), r.Recommendation)
	default:
		return "Data is current."
	}
}

func (s *Server) status(ctx context.Context, _ *mcp.CallToolRequest, _ StatusArgs) (*mcp.CallToolResult, any, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return nil, nil, err
	}
	return result(st, false)
}

func (s *Server) search(ctx context.Context, _ *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
	includeStale := true
	if args.IncludeStale != nil {
		includeStale = *args.IncludeStale
	}
	resp, err := s.svc.Search(ctx, args.Query, args.MaxResults, includeStale)
	if err != nil {
		return nil, nil, err
	}
	return result(resp, false)
}

// result renders v as JSON text and as structured content.
func result(v any, isError bool) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: json.RawMessage(data),
		IsError:           isError,
	}, nil, nil
}
