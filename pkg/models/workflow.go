package models

import (
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow document.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// Agent is one unit of work in a workflow. Inputs and Outputs are declared
// names that may carry a "name: type" annotation.
type Agent struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description" yaml:"description"`
	Role        string   `json:"role" yaml:"role"`
	Prompt      string   `json:"prompt" yaml:"prompt" validate:"required"`
	Inputs      []string `json:"inputs" yaml:"inputs" validate:"dive,required"`
	Outputs     []string `json:"outputs" yaml:"outputs" validate:"required,dive,required"`
}

// Connection says that agent To consumes some of agent From's outputs.
type Connection struct {
	From        string `json:"from" yaml:"from"`
	To          string `json:"to" yaml:"to"`
	Description string `json:"description" yaml:"description"`
}

// WorkflowFlow is the edge set of a workflow's agent graph.
type WorkflowFlow struct {
	Description string       `json:"description" yaml:"description"`
	Connections []Connection `json:"connections" yaml:"connections"`
}

// Workflow is a named graph of agents owned by a user.
type Workflow struct {
	ID               string         `json:"id" yaml:"id"`
	UserID           string         `json:"user_id" yaml:"-"`
	Name             string         `json:"name" yaml:"name"`
	Description      string         `json:"description" yaml:"description"`
	ProblemStatement string         `json:"problem_statement" yaml:"problem_statement"`
	Agents           []Agent        `json:"agents" yaml:"agents"`
	Flow             WorkflowFlow   `json:"flow" yaml:"flow"`
	Status           WorkflowStatus `json:"status" yaml:"status"`
	LastRun          *time.Time     `json:"last_run" yaml:"-"`
	CreatedAt        time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time      `json:"updated_at" yaml:"-"`
}

// Agent returns the agent with the given id.
func (w *Workflow) Agent(id string) (Agent, bool) {
	for _, a := range w.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// WorkflowInput is the payload for creating a workflow from a problem statement.
type WorkflowInput struct {
	Name             string `json:"name" validate:"required"`
	Description      string `json:"description"`
	ProblemStatement string `json:"problem_statement" validate:"required"`
}

// WorkflowPatch carries a partial update. Nil fields are left unchanged.
type WorkflowPatch struct {
	Name             *string         `json:"name,omitempty"`
	Description      *string         `json:"description,omitempty"`
	ProblemStatement *string         `json:"problem_statement,omitempty"`
	Status           *WorkflowStatus `json:"status,omitempty" validate:"omitempty,oneof=draft active archived"`
	Agents           []Agent         `json:"agents,omitempty" validate:"omitempty,dive"`
	Flow             *WorkflowFlow   `json:"flow,omitempty"`
}

// WorkflowStatusSummary is the compact status view of a workflow.
type WorkflowStatusSummary struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Status          WorkflowStatus `json:"status"`
	LastRun         *time.Time     `json:"last_run"`
	AgentCount      int            `json:"agent_count"`
	ConnectionCount int            `json:"connection_count"`
}
