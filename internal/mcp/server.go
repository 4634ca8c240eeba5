// Package mcp exposes workflow execution as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agent-architect/backend/internal/auth"
	"agent-architect/backend/internal/services"
	"agent-architect/backend/pkg/models"
)

// Server is the MCP tool server.
type Server struct {
	mcpServer *server.MCPServer
	workflows *services.WorkflowService
}

// NewServer creates a new Server with every tool registered.
func NewServer(workflows *services.WorkflowService, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Agent Architect",
			version,
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
	}

	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List your workflows, most recently updated first"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"execute_workflow",
			mcp.WithDescription("Start an execution of a workflow and return its execution id"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithObject("inputs", mcp.Description("Global inputs, keyed by input name")),
		),
		s.handleExecuteWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_execution_updates",
			mcp.WithDescription("Return the updates of an execution, starting at index from"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The ID of the execution")),
			mcp.WithNumber("from", mcp.Min(0), mcp.DefaultNumber(0), mcp.Description("Index of the first update to return")),
		),
		s.handleGetExecutionUpdates,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"interrupt_execution",
			mcp.WithDescription("Stop observing an execution and mark it failed"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The ID of the execution")),
		),
		s.handleInterruptExecution,
	)
}

// executionPage is the get_execution_updates result.
type executionPage struct {
	ExecutionID string                   `json:"execution_id"`
	Updates     []models.ExecutionUpdate `json:"updates"`
	IsComplete  bool                     `json:"is_complete"`
	Next        int                      `json:"next"`
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated"), nil
	}

	workflows, err := s.workflows.ListWorkflows(ctx, userID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to list workflows", err), nil
	}
	return mcp.NewToolResultJSON(workflows)
}

func (s *Server) handleExecuteWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated"), nil
	}

	workflowID, err := request.RequireString("workflow_id")
	if err != nil || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	var inputs map[string]any
	if raw, present := request.GetArguments()["inputs"]; present && raw != nil {
		if inputs, ok = raw.(map[string]any); !ok {
			return mcp.NewToolResultError("Parameter inputs must be an object"), nil
		}
	}

	execID, err := s.workflows.StartExecution(ctx, workflowID, userID, inputs)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to start execution", err), nil
	}
	return mcp.NewToolResultJSON(models.ExecutionStarted{ExecutionID: execID})
}

func (s *Server) handleGetExecutionUpdates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated"), nil
	}

	execID, err := request.RequireString("execution_id")
	if err != nil || execID == "" {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}
	from := request.GetInt("from", 0)
	if from < 0 {
		from = 0
	}

	updates, complete, _, err := s.workflows.ExecutionUpdates(execID, userID, from)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to get execution updates", err), nil
	}
	if updates == nil {
		updates = []models.ExecutionUpdate{}
	}
	return mcp.NewToolResultJSON(executionPage{
		ExecutionID: execID,
		Updates:     updates,
		IsComplete:  complete,
		Next:        from + len(updates),
	})
}

func (s *Server) handleInterruptExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated"), nil
	}

	execID, err := request.RequireString("execution_id")
	if err != nil || execID == "" {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	if err := s.workflows.InterruptExecution(execID, userID); err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to interrupt execution", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Execution %s interrupted", execID)), nil
}

// MountHTTPHandlers serves the MCP SSE transport under /mcp. Requests are
// expected to have passed auth.RequireAuth; the caller's user id is carried
// into every tool call.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath("/mcp"),
		server.WithSSEContextFunc(carryUserID),
	)

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}

func carryUserID(ctx context.Context, r *http.Request) context.Context {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return auth.WithUserID(ctx, userID)
	}
	return ctx
}
