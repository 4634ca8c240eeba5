package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"agent-architect/backend/internal/engine"
	"agent-architect/backend/internal/executions"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/internal/repository"
	"agent-architect/backend/pkg/models"
)

// ErrAgentNotFound is returned when a workflow has no agent with the given id.
var ErrAgentNotFound = errors.New("agent not found")

// ValidationError reports a request the service refuses to act on.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// WorkflowService is a service for managing and running workflows.
type WorkflowService struct {
	store     repository.WorkflowStore
	architect *Architect
	invoker   *engine.Invoker
	registry  *executions.Registry
	validate  *validator.Validate
	logger    *logging.Logger
	now       func() time.Time
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(store repository.WorkflowStore, architect *Architect, invoker *engine.Invoker, registry *executions.Registry, logger *logging.Logger) *WorkflowService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WorkflowService{
		store:     store,
		architect: architect,
		invoker:   invoker,
		registry:  registry,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		now:       time.Now,
	}
}

// ListWorkflows returns the user's workflows, most recently updated first.
func (s *WorkflowService) ListWorkflows(ctx context.Context, userID string) ([]*models.Workflow, error) {
	return s.store.ListWorkflows(ctx, userID)
}

// GetWorkflow returns one of the user's workflows.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id, userID string) (*models.Workflow, error) {
	return s.store.GetWorkflow(ctx, id, userID)
}

// CreateWorkflow designs a workflow for the problem statement and stores it
// as a draft.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, userID string, input models.WorkflowInput) (*models.Workflow, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, invalid("invalid workflow: %v", err)
	}
	design, err := s.architect.Analyze(ctx, input.ProblemStatement)
	if err != nil {
		return nil, err
	}

	w := &models.Workflow{
		UserID:           userID,
		Name:             input.Name,
		Description:      input.Description,
		ProblemStatement: input.ProblemStatement,
		Agents:           design.Agents,
		Flow:             design.Flow,
		Status:           models.WorkflowStatusDraft,
	}
	if err := s.store.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	s.logger.WithWorkflow(w.ID).Info("workflow created", "agents", len(w.Agents), "connections", len(w.Flow.Connections))
	return w, nil
}

// UpdateWorkflow applies a partial update. A new problem statement without
// an explicit agent list re-runs the architect.
func (s *WorkflowService) UpdateWorkflow(ctx context.Context, id, userID string, patch models.WorkflowPatch) (*models.Workflow, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, invalid("invalid update: %v", err)
	}
	w, err := s.store.GetWorkflow(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		w.Name = *patch.Name
	}
	if patch.Description != nil {
		w.Description = *patch.Description
	}
	if patch.Status != nil {
		w.Status = *patch.Status
	}
	if patch.ProblemStatement != nil {
		w.ProblemStatement = *patch.ProblemStatement
		if patch.Agents == nil {
			design, err := s.architect.Analyze(ctx, w.ProblemStatement)
			if err != nil {
				return nil, err
			}
			w.Agents = design.Agents
			w.Flow = design.Flow
		}
	}
	if patch.Agents != nil {
		agents, err := assignAgentIDs(patch.Agents)
		if err != nil {
			return nil, err
		}
		w.Agents = agents
	}
	if patch.Flow != nil {
		w.Flow = *patch.Flow
	}
	if patch.Agents != nil || patch.Flow != nil {
		pruneConnections(w)
	}

	if err := s.store.UpdateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// DeleteWorkflow removes a workflow. Running executions are not affected.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id, userID string) error {
	return s.store.DeleteWorkflow(ctx, id, userID)
}

// Status summarizes a workflow.
func (s *WorkflowService) Status(ctx context.Context, id, userID string) (*models.WorkflowStatusSummary, error) {
	w, err := s.store.GetWorkflow(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return &models.WorkflowStatusSummary{
		ID:              w.ID,
		Name:            w.Name,
		Status:          w.Status,
		LastRun:         w.LastRun,
		AgentCount:      len(w.Agents),
		ConnectionCount: len(w.Flow.Connections),
	}, nil
}

// AddAgent appends an agent. An empty id is generated.
func (s *WorkflowService) AddAgent(ctx context.Context, id, userID string, agent models.Agent) (*models.Workflow, error) {
	if err := s.validate.Struct(agent); err != nil {
		return nil, invalid("invalid agent: %v", err)
	}
	w, err := s.store.GetWorkflow(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if _, exists := w.Agent(agent.ID); exists {
		return nil, invalid("agent id %q already exists", agent.ID)
	}
	w.Agents = append(w.Agents, agent)
	if err := s.store.UpdateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// ReplaceAgents replaces the agent list. Connections that no longer name
// two existing agents are removed.
func (s *WorkflowService) ReplaceAgents(ctx context.Context, id, userID string, agents []models.Agent) (*models.Workflow, error) {
	for i := range agents {
		if err := s.validate.Struct(agents[i]); err != nil {
			return nil, invalid("invalid agent %d: %v", i+1, err)
		}
	}
	w, err := s.store.GetWorkflow(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if w.Agents, err = assignAgentIDs(agents); err != nil {
		return nil, err
	}
	pruneConnections(w)

	if err := s.store.UpdateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateAgentPrompt replaces one agent's prompt and returns the agent.
func (s *WorkflowService) UpdateAgentPrompt(ctx context.Context, id, agentID, userID, prompt string) (*models.Agent, error) {
	if err := s.validate.Struct(models.PromptUpdate{Prompt: prompt}); err != nil {
		return nil, invalid("prompt is required")
	}
	w, err := s.store.GetWorkflow(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	agent, ok := w.Agent(agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}
	agent.Prompt = prompt
	if err := s.replaceAgent(ctx, w, agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// DebugAgent runs one agent on its own. With update set, an improved prompt
// is saved when the action succeeded.
func (s *WorkflowService) DebugAgent(ctx context.Context, id, agentID, userID string, req models.AgentDebugRequest, update bool) (*models.AgentDebugResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid("invalid action: must be one of debug, execute, generate-prompt")
	}
	w, err := s.store.GetWorkflow(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	agent, ok := w.Agent(agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}
	log := s.logger.WithWorkflow(id).WithAgent(agent.ID, agent.Name)

	switch req.Action {
	case models.DebugActionExecute:
		if req.Inputs == nil {
			return nil, invalid("inputs are required for execution")
		}
		inv, err := s.invoker.Invoke(ctx, agent, req.Inputs)
		if err != nil {
			return nil, err
		}
		return &models.AgentDebugResult{
			Success:  true,
			Result:   &inv.Output,
			Agent:    &agent,
			Warnings: advisoryStrings(inv.Advisories),
		}, nil

	case models.DebugActionGeneratePrompt:
		improved, err := s.architect.ImprovePrompt(ctx, agent)
		if err != nil {
			return nil, err
		}
		agent.Prompt = improved
		result := &models.AgentDebugResult{Success: true, ImprovedPrompt: improved, Agent: &agent}
		if update {
			if err := s.saveAgent(ctx, id, userID, agent); err != nil {
				return nil, err
			}
			result.AgentUpdated = true
			log.Info("agent prompt regenerated")
		}
		return result, nil

	default:
		improved, err := s.architect.ImprovePrompt(ctx, agent)
		if err != nil {
			return nil, err
		}
		agent.Prompt = improved
		inputs := req.Inputs
		if inputs == nil {
			inputs = map[string]any{}
		}
		inv, err := s.invoker.Invoke(ctx, agent, inputs)
		if err != nil {
			return nil, err
		}
		result := &models.AgentDebugResult{
			Success:        inv.ParseError == nil,
			Result:         &inv.Output,
			ImprovedPrompt: improved,
			Agent:          &agent,
			Warnings:       advisoryStrings(inv.Advisories),
		}
		if update && result.Success {
			if err := s.saveAgent(ctx, id, userID, agent); err != nil {
				return nil, err
			}
			result.AgentUpdated = true
			log.Info("agent updated after debug run")
		}
		return result, nil
	}
}

// StartExecution starts an asynchronous run of the workflow and returns its
// execution id. LastRun is recorded when the run ends.
func (s *WorkflowService) StartExecution(ctx context.Context, id, userID string, inputs map[string]any) (string, error) {
	w, err := s.store.GetWorkflow(ctx, id, userID)
	if err != nil {
		return "", err
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	execID := s.registry.Start(ctx, *w, inputs, func(execID string, _ *engine.ExecutionResult, runErr error) {
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.store.SetLastRun(finishCtx, w.ID, userID, s.now()); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.WithExecution(execID).Error("failed to record last run", "error", err)
		}
	})
	s.logger.WithWorkflow(w.ID).WithExecution(execID).Info("execution started", "inputs", len(inputs))
	return execID, nil
}

// Execution returns the updates of one of the user's executions.
func (s *WorkflowService) Execution(executionID, userID string) (models.ExecutionSnapshot, error) {
	snap, err := s.registry.Poll(executionID)
	if err != nil {
		return models.ExecutionSnapshot{}, err
	}
	if snap.UserID != userID {
		return models.ExecutionSnapshot{}, executions.ErrNotFound
	}
	return snap, nil
}

// ExecutionUpdates returns updates of one of the user's executions from
// index from on, whether it is complete, and a channel closed on change.
func (s *WorkflowService) ExecutionUpdates(executionID, userID string, from int) ([]models.ExecutionUpdate, bool, <-chan struct{}, error) {
	if _, err := s.Execution(executionID, userID); err != nil {
		return nil, false, nil, err
	}
	return s.registry.Updates(executionID, from)
}

// InterruptExecution stops observing one of the user's executions and marks
// it failed.
func (s *WorkflowService) InterruptExecution(executionID, userID string) error {
	if _, err := s.Execution(executionID, userID); err != nil {
		return err
	}
	return s.registry.Interrupt(executionID)
}

// saveAgent stores agent into the current version of the workflow, so edits
// made while a model call was running are kept.
func (s *WorkflowService) saveAgent(ctx context.Context, id, userID string, agent models.Agent) error {
	w, err := s.store.GetWorkflow(ctx, id, userID)
	if err != nil {
		return err
	}
	if _, ok := w.Agent(agent.ID); !ok {
		return ErrAgentNotFound
	}
	return s.replaceAgent(ctx, w, agent)
}

func (s *WorkflowService) replaceAgent(ctx context.Context, w *models.Workflow, agent models.Agent) error {
	for i := range w.Agents {
		if w.Agents[i].ID == agent.ID {
			w.Agents[i] = agent
			break
		}
	}
	return s.store.UpdateWorkflow(ctx, w)
}

// pruneConnections drops connections that do not name two existing agents.
func pruneConnections(w *models.Workflow) {
	kept := make([]models.Connection, 0, len(w.Flow.Connections))
	for _, c := range w.Flow.Connections {
		_, fromOK := w.Agent(c.From)
		_, toOK := w.Agent(c.To)
		if fromOK && toOK {
			kept = append(kept, c)
		}
	}
	w.Flow.Connections = kept
}

func assignAgentIDs(agents []models.Agent) ([]models.Agent, error) {
	out := make([]models.Agent, len(agents))
	seen := make(map[string]bool, len(agents))
	for i, a := range agents {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if seen[a.ID] {
			return nil, invalid("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		out[i] = a
	}
	return out, nil
}

func advisoryStrings(advisories []engine.Advisory) []string {
	if len(advisories) == 0 {
		return nil
	}
	out := make([]string, len(advisories))
	for i, a := range advisories {
		out[i] = a.String()
	}
	return out
}
