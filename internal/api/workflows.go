// Package api contains the HTTP handlers for the agent workflow service
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"agent-architect/backend/internal/auth"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/internal/services"
	"agent-architect/backend/pkg/models"
)

// Server holds the dependencies of the /api/v1 handlers.
type Server struct {
	workflows *services.WorkflowService
	logger    *logging.Logger
}

// NewServer creates a new Server.
func NewServer(workflows *services.WorkflowService, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{workflows: workflows, logger: logger}
}

// RegisterHandlers mounts every /api/v1 route on g.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PATCH("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.GET("/workflows/:id/status", s.GetWorkflowStatus)
	g.POST("/workflows/:id/agents", s.AddAgent)
	g.PATCH("/workflows/:id/agents", s.ReplaceAgents)
	g.PUT("/workflows/:id/agents/:agentId", s.UpdateAgentPrompt)
	g.POST("/workflows/:id/agents/:agentId/debug", s.DebugAgent)
	g.POST("/workflows/:id/execute", s.ExecuteWorkflow)

	g.GET("/executions/:executionId", s.GetExecution)
	g.POST("/executions/:executionId/interrupt", s.InterruptExecution)
	g.GET("/executions/:executionId/ws", s.StreamExecution)
}

// currentUser returns the authenticated user's id.
func currentUser(c echo.Context) (string, error) {
	userID, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "user not found in context")
	}
	return userID, nil
}

// pathParam binds a simple-style path parameter.
func pathParam(c echo.Context, name string) (string, error) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, c.Param(name), &value,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil || value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter "+name)
	}
	return value, nil
}

// bind decodes the request body into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	return c.Validate(dst)
}

// ListWorkflows returns the caller's workflows
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	workflows, err := s.workflows.ListWorkflows(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, workflows)
}

// CreateWorkflow designs and stores a workflow for a problem statement
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var input models.WorkflowInput
	if err := bind(c, &input); err != nil {
		return err
	}
	w, err := s.workflows.CreateWorkflow(c.Request().Context(), userID, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, w)
}

// GetWorkflow returns one workflow
// (GET /api/v1/workflows/{id})
func (s *Server) GetWorkflow(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	w, err := s.workflows.GetWorkflow(c.Request().Context(), id, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

// UpdateWorkflow applies a partial update
// (PATCH /api/v1/workflows/{id})
func (s *Server) UpdateWorkflow(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	var patch models.WorkflowPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	w, err := s.workflows.UpdateWorkflow(c.Request().Context(), id, userID, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

// DeleteWorkflow removes a workflow
// (DELETE /api/v1/workflows/{id})
func (s *Server) DeleteWorkflow(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.workflows.DeleteWorkflow(c.Request().Context(), id, userID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// GetWorkflowStatus returns the status summary of a workflow
// (GET /api/v1/workflows/{id}/status)
func (s *Server) GetWorkflowStatus(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	status, err := s.workflows.Status(c.Request().Context(), id, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// AddAgent appends an agent to a workflow
// (POST /api/v1/workflows/{id}/agents)
func (s *Server) AddAgent(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	var agent models.Agent
	if err := bind(c, &agent); err != nil {
		return err
	}
	w, err := s.workflows.AddAgent(c.Request().Context(), id, userID, agent)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

type agentList struct {
	Agents []models.Agent `json:"agents" validate:"required,dive"`
}

// ReplaceAgents replaces the agent list of a workflow
// (PATCH /api/v1/workflows/{id}/agents)
func (s *Server) ReplaceAgents(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	var body agentList
	if err := bind(c, &body); err != nil {
		return err
	}
	w, err := s.workflows.ReplaceAgents(c.Request().Context(), id, userID, body.Agents)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

// UpdateAgentPrompt replaces one agent's prompt
// (PUT /api/v1/workflows/{id}/agents/{agentId})
func (s *Server) UpdateAgentPrompt(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	agentID, err := pathParam(c, "agentId")
	if err != nil {
		return err
	}
	var body models.PromptUpdate
	if err := bind(c, &body); err != nil {
		return err
	}
	agent, err := s.workflows.UpdateAgentPrompt(c.Request().Context(), id, agentID, userID, body.Prompt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agent)
}

// DebugAgent runs one agent on its own
// (POST /api/v1/workflows/{id}/agents/{agentId}/debug)
func (s *Server) DebugAgent(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	agentID, err := pathParam(c, "agentId")
	if err != nil {
		return err
	}
	var update bool
	if err := runtime.BindQueryParameter("form", true, false, "update", c.QueryParams(), &update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter update")
	}
	var req models.AgentDebugRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	result, err := s.workflows.DebugAgent(c.Request().Context(), id, agentID, userID, req, update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type executeRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// ExecuteWorkflow starts an asynchronous execution
// (POST /api/v1/workflows/{id}/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	var body executeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	execID, err := s.workflows.StartExecution(c.Request().Context(), id, userID, body.Inputs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, models.ExecutionStarted{ExecutionID: execID})
}
