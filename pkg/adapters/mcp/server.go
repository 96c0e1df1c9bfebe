package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/autoflow/internal/logging"
	"github.com/aretw0/autoflow/internal/presentation/graph"
	"github.com/aretw0/autoflow/internal/validator"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/scheduler"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Engine defines the AutoFlow operations exposed as MCP tools.
type Engine interface {
	List(ctx context.Context) ([]domain.WorkflowSummary, error)
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	RunOnce(ctx context.Context, id string, seed map[string]any) (string, error)
	RunSync(ctx context.Context, id string, seed map[string]any) (*domain.RunReport, error)
	Activate(ctx context.Context, id string) (*scheduler.Activation, error)
	Deactivate(ctx context.Context, id string) error
	IsActive(id string) bool
	Runs(ctx context.Context, id string, limit int) ([]domain.RunRecord, error)
}

// WorkflowItem is one entry of the list_workflows result.
type WorkflowItem struct {
	ID      string `json:"id" jsonschema_description:"Workflow identifier"`
	Name    string `json:"name" jsonschema_description:"Display name"`
	Nodes   int    `json:"nodes" jsonschema_description:"Number of nodes"`
	Version int64  `json:"version" jsonschema_description:"Stored version"`
	Active  bool   `json:"active" jsonschema_description:"Whether a recurring schedule is installed"`
}

// ListResponse is the structured result of list_workflows.
type ListResponse struct {
	Workflows []WorkflowItem `json:"workflows" jsonschema_description:"Stored workflows, most recently updated first"`
}

// RunResponse is the structured result of run_workflow.
type RunResponse struct {
	RunID  string            `json:"run_id" jsonschema_description:"Identifier of the started run"`
	Status string            `json:"status" jsonschema_description:"accepted, succeeded or failed"`
	Report *domain.RunReport `json:"report,omitempty" jsonschema_description:"Outcomes of every node, only when wait is true"`
}

// ActivationResponse is the structured result of activate_workflow and deactivate_workflow.
type ActivationResponse struct {
	WorkflowID string `json:"workflow_id"`
	Active     bool   `json:"active"`
	Schedule   string `json:"schedule,omitempty"`
	Noop       bool   `json:"noop,omitempty" jsonschema_description:"True when the workflow was not active"`
}

// Server wraps the AutoFlow Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger. Stdout is reserved for JSON-RPC.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("autoflow-mcp", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

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
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_workflows",
		mcp.WithDescription("List stored workflows and whether each one is scheduled."),
		mcp.WithOutputSchema[ListResponse](),
	), mcp.NewStructuredToolHandler(s.handleList))

	s.mcpServer.AddTool(mcp.NewTool("get_workflow",
		mcp.WithDescription("Get the full definition (nodes, edges, config) of a workflow."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
	), s.handleGet)

	s.mcpServer.AddTool(mcp.NewTool("run_workflow",
		mcp.WithDescription("Run a workflow once. By default the run continues in the background."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithString("context", mcp.Description("JSON object seeding the run context, e.g. {\"identity\":\"a@b.c\",\"name\":\"Ann\"}")),
		mcp.WithBoolean("wait", mcp.Description("Block until the run completes and return its report")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("activate_workflow",
		mcp.WithDescription("Install a recurring schedule for the workflow, replacing any existing one."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithOutputSchema[ActivationResponse](),
	), mcp.NewStructuredToolHandler(s.handleActivate))

	s.mcpServer.AddTool(mcp.NewTool("deactivate_workflow",
		mcp.WithDescription("Remove the recurring schedule of the workflow. Runs in flight are not affected."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithOutputSchema[ActivationResponse](),
	), mcp.NewStructuredToolHandler(s.handleDeactivate))

	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List the most recent runs of a workflow, newest first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 10)")),
	), s.handleRuns)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Render a workflow as a Mermaid flowchart, optionally overlaid with a recorded run."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithString("run_id", mcp.Description("Run to overlay (optional)")),
	), s.handleGraph)

	s.mcpServer.AddTool(mcp.NewTool("validate_workflow",
		mcp.WithDescription("Check a workflow definition for structural errors and likely mistakes without storing it."),
		mcp.WithString("definition", mcp.Required(), mcp.Description("Workflow JSON")),
	), s.handleValidate)
}

// Handler methods for structured tools

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ListResponse, error) {
	list, err := s.engine.List(ctx)
	if err != nil {
		return ListResponse{}, fmt.Errorf("list failed: %w", err)
	}
	resp := ListResponse{Workflows: make([]WorkflowItem, 0, len(list))}
	for _, sum := range list {
		resp.Workflows = append(resp.Workflows, WorkflowItem{
			ID:      sum.ID,
			Name:    sum.Name,
			Nodes:   sum.Nodes,
			Version: sum.Version,
			Active:  s.engine.IsActive(sum.ID),
		})
	}
	return resp, nil
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	id, _ := args["id"].(string)
	wait, _ := args["wait"].(bool)

	seed := map[string]any{}
	if raw, ok := args["context"].(string); ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &seed); err != nil {
			return RunResponse{}, fmt.Errorf("context must be a JSON object: %w", err)
		}
	}

	if !wait {
		runID, err := s.engine.RunOnce(ctx, id, seed)
		if err != nil {
			return RunResponse{}, fmt.Errorf("run failed: %w", err)
		}
		s.logger.Info("MCP run accepted", "workflow_id", id, "run_id", runID)
		return RunResponse{RunID: runID, Status: "accepted"}, nil
	}

	report, err := s.engine.RunSync(ctx, id, seed)
	if err != nil {
		return RunResponse{}, fmt.Errorf("run failed: %w", err)
	}
	status := "succeeded"
	if report.Failed() {
		status = "failed"
	}
	return RunResponse{RunID: report.RunID, Status: status, Report: report}, nil
}

func (s *Server) handleActivate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ActivationResponse, error) {
	id, _ := args["id"].(string)
	act, err := s.engine.Activate(ctx, id)
	if err != nil {
		return ActivationResponse{}, fmt.Errorf("activate failed: %w", err)
	}
	return ActivationResponse{WorkflowID: id, Active: true, Schedule: act.Schedule}, nil
}

func (s *Server) handleDeactivate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ActivationResponse, error) {
	id, _ := args["id"].(string)
	err := s.engine.Deactivate(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotActive) {
		return ActivationResponse{}, fmt.Errorf("deactivate failed: %w", err)
	}
	return ActivationResponse{WorkflowID: id, Noop: err != nil}, nil
}

// Handler methods for text tools

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, err := s.engine.Get(ctx, request.GetString("id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}
	jsonBytes, _ := json.MarshalIndent(wf, "", "  ")
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(request.GetFloat("limit", 10))
	if limit < 1 {
		limit = 10
	}
	runs, err := s.engine.Runs(ctx, request.GetString("id", ""), limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(runs)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	wf, err := s.engine.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}

	var overlay *graph.GraphOverlay
	if runID := request.GetString("run_id", ""); runID != "" {
		runs, err := s.engine.Runs(ctx, id, 100)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
		}
		for _, rec := range runs {
			if rec.RunID == runID {
				overlay = graph.OverlayFromOutcomes(rec.Outcomes)
				break
			}
		}
		if overlay == nil {
			return mcp.NewToolResultError(fmt.Sprintf("run %q not found", runID)), nil
		}
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(wf, overlay)), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var wf domain.Workflow
	if err := json.Unmarshal([]byte(request.GetString("definition", "")), &wf); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid JSON: %v", err)), nil
	}
	warnings, err := validator.ValidateWorkflow(&wf)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(warnings) == 0 {
		return mcp.NewToolResultText("ok: no issues found"), nil
	}
	lines := make([]string, 0, len(warnings))
	for _, w := range warnings {
		lines = append(lines, "- "+w.String())
	}
	return mcp.NewToolResultText("ok with warnings:\n" + strings.Join(lines, "\n")), nil
}

func (s *Server) registerResources() {
	// EXPOSE: autoflow://workflows
	s.mcpServer.AddResource(mcp.NewResource("autoflow://workflows", "Stored Workflows",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		resp, err := s.handleList(ctx, mcp.CallToolRequest{}, nil)
		if err != nil {
			return nil, err
		}
		jsonBytes, _ := json.Marshal(resp)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "autoflow://workflows",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
