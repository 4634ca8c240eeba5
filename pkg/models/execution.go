package models

import (
	"time"
)

// UpdateType identifies an execution lifecycle event.
type UpdateType string

const (
	UpdateStart         UpdateType = "start"
	UpdateAgentStart    UpdateType = "agent-start"
	UpdateAgentComplete UpdateType = "agent-complete"
	UpdateComplete      UpdateType = "complete"
	UpdateError         UpdateType = "error"
)

// Terminal reports whether the update ends an execution.
func (t UpdateType) Terminal() bool {
	return t == UpdateComplete || t == UpdateError
}

// ExecutionUpdate is one event in an execution's append-only update stream.
type ExecutionUpdate struct {
	Type      UpdateType     `json:"type"`
	Message   string         `json:"message"`
	Agent     *Agent         `json:"agent,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AgentOutput is the validated return of a single agent invocation. Result
// is keyed by the agent's declared output names.
type AgentOutput struct {
	Result    map[string]any `json:"result"`
	Reasoning string         `json:"reasoning"`
}

// ExecutionSnapshot is what a poller sees for an execution.
type ExecutionSnapshot struct {
	ExecutionID string            `json:"execution_id"`
	WorkflowID  string            `json:"workflow_id"`
	UserID      string            `json:"-"`
	Updates     []ExecutionUpdate `json:"updates"`
	IsComplete  bool              `json:"is_complete"`
}

// ExecutionStarted is returned when an execution is accepted.
type ExecutionStarted struct {
	ExecutionID string `json:"execution_id"`
}
