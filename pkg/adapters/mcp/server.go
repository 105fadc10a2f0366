// Package mcp exposes a workspace to MCP clients: tools to inspect and edit
// the filter stack and a resource holding the filtered graph.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI names the filtered graph resource.
const GraphURI = "strata://graph"

// StackSummary is returned by every stack tool.
type StackSummary struct {
	Stack         filter.Stack `json:"stack" jsonschema_description:"Active (past) and suspended (future) filters"`
	Nodes         int          `json:"nodes" jsonschema_description:"Node count of the filtered graph"`
	Edges         int          `json:"edges" jsonschema_description:"Edge count of the filtered graph"`
	PipelineError string       `json:"pipeline_error,omitempty" jsonschema_description:"Error of the first failing stage, if any"`
}

// FilterArgs carries a filter definition.
type FilterArgs struct {
	Filter map[string]any `json:"filter"`
}

// IndexArgs carries a stack index.
type IndexArgs struct {
	Index int `json:"index"`
}

// Server wraps a Workspace and exposes it as an MCP server.
type Server struct {
	ws        *strata.Workspace
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an MCP server for ws.
func NewServer(ws *strata.Workspace, opts ...Option) *Server {
	s := &Server{
		ws:        ws,
		mcpServer: server.NewMCPServer("strata-mcp", strings.TrimSpace(strata.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_filters",
		mcp.WithDescription("List the filter stack and the size of the filtered graph."),
		mcp.WithOutputSchema[StackSummary](),
	), mcp.NewStructuredToolHandler(s.handleListFilters))

	filterParam := mcp.WithObject("filter", mcp.Required(),
		mcp.Description(`Filter definition. "type" is one of range, terms, script, topological; `+
			`e.g. {"type":"range","item_type":"nodes","field":"age","min":18}`))

	s.mcpServer.AddTool(mcp.NewTool("add_filter",
		mcp.WithDescription("Validate a filter, try it on the filtered graph and push it onto the stack."),
		filterParam,
		mcp.WithOutputSchema[StackSummary](),
	), mcp.NewStructuredToolHandler(s.handleAddFilter))

	s.mcpServer.AddTool(mcp.NewTool("replace_current_filter",
		mcp.WithDescription("Replace the current (last active) filter."),
		filterParam,
		mcp.WithOutputSchema[StackSummary](),
	), mcp.NewStructuredToolHandler(s.handleReplaceCurrentFilter))

	s.mcpServer.AddTool(mcp.NewTool("open_past_filter",
		mcp.WithDescription("Suspend active filters from index on, making the filter before it current."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Index into the active filters")),
		mcp.WithOutputSchema[StackSummary](),
	), mcp.NewStructuredToolHandler(s.handleOpenPastFilter))

	s.mcpServer.AddTool(mcp.NewTool("open_future_filter",
		mcp.WithDescription("Reactivate suspended filters up to and including index."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Index into the suspended filters")),
		mcp.WithOutputSchema[StackSummary](),
	), mcp.NewStructuredToolHandler(s.handleOpenFutureFilter))

	s.mcpServer.AddTool(mcp.NewTool("delete_current_filter",
		mcp.WithDescription("Remove the current filter."),
		mcp.WithOutputSchema[StackSummary](),
	), mcp.NewStructuredToolHandler(s.handleDeleteCurrentFilter))

	s.mcpServer.AddTool(mcp.NewTool("get_filtered_graph",
		mcp.WithDescription("Get the filtered graph as JSON."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := s.graphJSON()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) summary() StackSummary {
	s.ws.Flush()
	g := s.ws.Filtered().Get()
	sum := StackSummary{
		Stack: s.ws.Filters().Get(),
		Nodes: g.Order(),
		Edges: g.Size(),
	}
	if err := s.ws.Err(); err != nil {
		sum.PipelineError = err.Error()
	}
	return sum
}

func (s *Server) result(op string, err error) (StackSummary, error) {
	if err != nil {
		s.logger.Debug("MCP tool rejected", "tool", op, "error", err)
		return StackSummary{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.summary(), nil
}

func (s *Server) handleListFilters(_ context.Context, _ mcp.CallToolRequest, _ struct{}) (StackSummary, error) {
	return s.summary(), nil
}

func (s *Server) handleAddFilter(_ context.Context, _ mcp.CallToolRequest, args FilterArgs) (StackSummary, error) {
	def, err := filter.Decode(args.Filter)
	if err != nil {
		return s.result("add_filter", err)
	}
	return s.result("add_filter", s.ws.AddFilter(def))
}

func (s *Server) handleReplaceCurrentFilter(_ context.Context, _ mcp.CallToolRequest, args FilterArgs) (StackSummary, error) {
	def, err := filter.Decode(args.Filter)
	if err != nil {
		return s.result("replace_current_filter", err)
	}
	return s.result("replace_current_filter", s.ws.ReplaceCurrentFilter(def))
}

func (s *Server) handleOpenPastFilter(_ context.Context, _ mcp.CallToolRequest, args IndexArgs) (StackSummary, error) {
	return s.result("open_past_filter", s.ws.OpenPastFilter(args.Index))
}

func (s *Server) handleOpenFutureFilter(_ context.Context, _ mcp.CallToolRequest, args IndexArgs) (StackSummary, error) {
	return s.result("open_future_filter", s.ws.OpenFutureFilter(args.Index))
}

func (s *Server) handleDeleteCurrentFilter(_ context.Context, _ mcp.CallToolRequest, _ struct{}) (StackSummary, error) {
	return s.result("delete_current_filter", s.ws.DeleteCurrentFilter())
}

func (s *Server) graphJSON() ([]byte, error) {
	s.ws.Flush()
	data, err := json.Marshal(s.ws.Filtered().Get())
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	return data, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Filtered graph",
		mcp.WithResourceDescription("The dataset graph after the active filters."),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := s.graphJSON()
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
