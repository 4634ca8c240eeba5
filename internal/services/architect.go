package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agent-architect/backend/internal/engine"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/pkg/models"
)

// ErrNoAgents is returned when the architect proposes no usable agent.
var ErrNoAgents = errors.New("architect produced no usable agents")

// Design is the architect's proposal for a problem statement.
type Design struct {
	Analysis string
	Agents   []models.Agent
	Flow     models.WorkflowFlow
	Warnings []string
}

// Architect turns a problem statement into an agent graph with one model
// call and repairs what the model gets wrong.
type Architect struct {
	model  LanguageModel
	logger *logging.Logger
}

// NewArchitect creates a new Architect.
func NewArchitect(model LanguageModel, logger *logging.Logger) *Architect {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Architect{model: model, logger: logger}
}

type architectResponse struct {
	Analysis string               `json:"analysis"`
	Agents   []models.Agent       `json:"agents"`
	Flow     *models.WorkflowFlow `json:"flow"`
}

// Analyze asks the model for an agent design and repairs it.
func (a *Architect) Analyze(ctx context.Context, problemStatement string) (*Design, error) {
	a.logger.Info("analyzing problem statement", "length", len(problemStatement))

	text, err := a.model.Generate(ctx, architectPrompt(problemStatement))
	if err != nil {
		return nil, &engine.ModelInvocationError{AgentName: "architect", Err: err}
	}
	payload, err := engine.ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse architect response: %w", err)
	}

	var resp architectResponse
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode architect response: %w", err)
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("architect response has an unexpected shape: %w", err)
	}

	design, err := repairDesign(resp)
	if err != nil {
		return nil, err
	}
	for _, w := range design.Warnings {
		a.logger.Warn("architect design repaired", "detail", w)
	}
	return design, nil
}

// repairDesign enforces what the engine relies on: every agent has a unique
// id, a name and a prompt; the flow only names existing agents; a missing
// flow becomes a chain in declaration order.
func repairDesign(resp architectResponse) (*Design, error) {
	d := &Design{Analysis: resp.Analysis}

	seen := make(map[string]bool, len(resp.Agents))
	for i, agent := range resp.Agents {
		agent.Name = strings.TrimSpace(agent.Name)
		if agent.Name == "" || strings.TrimSpace(agent.Prompt) == "" {
			d.Warnings = append(d.Warnings, fmt.Sprintf("agent %d dropped: name and prompt are required", i+1))
			continue
		}
		if agent.ID == "" {
			agent.ID = uuid.NewString()
		}
		if seen[agent.ID] {
			base := agent.ID
			for n := 2; seen[agent.ID]; n++ {
				agent.ID = fmt.Sprintf("%s-%d", base, n)
			}
			d.Warnings = append(d.Warnings, fmt.Sprintf("duplicate agent id %q renamed to %q", base, agent.ID))
		}
		seen[agent.ID] = true

		if agent.Inputs == nil {
			agent.Inputs = []string{}
		}
		if agent.Outputs == nil {
			agent.Outputs = []string{}
		}
		for _, dup := range engine.DuplicateNames(agent.Inputs) {
			d.Warnings = append(d.Warnings, fmt.Sprintf("agent %q declares input %q more than once", agent.Name, dup))
		}
		for _, dup := range engine.DuplicateNames(agent.Outputs) {
			d.Warnings = append(d.Warnings, fmt.Sprintf("agent %q declares output %q more than once", agent.Name, dup))
		}
		d.Agents = append(d.Agents, agent)
	}
	if len(d.Agents) == 0 {
		return nil, ErrNoAgents
	}

	if resp.Flow == nil {
		d.Flow = SequentialFlow(d.Agents)
		return d, nil
	}
	d.Flow.Description = resp.Flow.Description
	d.Flow.Connections = []models.Connection{}
	for _, c := range resp.Flow.Connections {
		if !seen[c.From] || !seen[c.To] {
			d.Warnings = append(d.Warnings, fmt.Sprintf("connection %s -> %s dropped: unknown agent", c.From, c.To))
			continue
		}
		d.Flow.Connections = append(d.Flow.Connections, c)
	}
	return d, nil
}

// SequentialFlow chains agents in declaration order.
func SequentialFlow(agents []models.Agent) models.WorkflowFlow {
	flow := models.WorkflowFlow{
		Description: "Sequential flow between agents",
		Connections: []models.Connection{},
	}
	for i := 0; i+1 < len(agents); i++ {
		from, to := agents[i], agents[i+1]
		flow.Connections = append(flow.Connections, models.Connection{
			From:        from.ID,
			To:          to.ID,
			Description: fmt.Sprintf("Data flows from %s to %s", from.Name, to.Name),
		})
	}
	return flow
}

func architectPrompt(problemStatement string) string {
	return fmt.Sprintf(`You are an AI Architect Agent. Your task is to analyze the following problem statement and design a workflow of AI agents needed to solve it.

Problem Statement: %q

Based on this problem statement, please:
1. Identify the specific AI agents needed to solve this problem
2. For each agent, provide:
   - A descriptive name
   - A clear description of its purpose
   - Its specific role in the workflow
   - A prompt template that references every input as {{input_name}}
   - What inputs it requires, written as "name: type"
   - What outputs it produces, written as "name: type"
3. Define the flow of data between agents, showing how they connect and work together

Format your response as a JSON object with the following structure:
{
  "analysis": "A brief analysis of the problem and overall workflow strategy",
  "agents": [
    {
      "id": "unique-id-1",
      "name": "Agent Name",
      "description": "Description of what this agent does",
      "role": "The specific role this agent plays in the workflow",
      "prompt": "The prompt template this agent should use",
      "inputs": ["input1: string"],
      "outputs": ["output1: string"]
    }
  ],
  "flow": {
    "description": "A description of how data flows between agents",
    "connections": [
      {"from": "unique-id-1", "to": "unique-id-2", "description": "What data passes between them"}
    ]
  }
}

An agent's input must be named exactly like the upstream output that feeds it. Ensure your response is valid JSON and follows this exact structure.
`, problemStatement)
}

// promptWriterPrompt asks the model to rewrite an agent's prompt.
func promptWriterPrompt(agent models.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write prompt templates for AI agents. Improve the prompt of the agent below.\n\n")
	fmt.Fprintf(&b, "Name: %s\nDescription: %s\nRole: %s\n", agent.Name, agent.Description, agent.Role)
	fmt.Fprintf(&b, "Inputs: %s\nOutputs: %s\n\n", strings.Join(agent.Inputs, ", "), strings.Join(agent.Outputs, ", "))
	fmt.Fprintf(&b, "Current prompt:\n%s\n\n", agent.Prompt)
	b.WriteString("The new prompt must reference every input with a {{name}} placeholder using the name before any colon. ")
	b.WriteString("Respond with a JSON object: {\"prompt\": \"<the improved prompt>\"}\n")
	return b.String()
}

// ImprovePrompt asks the model for a better prompt for agent. The result
// always references every declared input.
func (a *Architect) ImprovePrompt(ctx context.Context, agent models.Agent) (string, error) {
	text, err := a.model.Generate(ctx, promptWriterPrompt(agent))
	if err != nil {
		return "", &engine.ModelInvocationError{AgentID: agent.ID, AgentName: "prompt writer", Err: err}
	}

	prompt := ""
	if payload, err := engine.ExtractJSON(text); err == nil {
		prompt, _ = payload["prompt"].(string)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "`"))
	}
	if prompt == "" {
		return "", errors.New("prompt generation returned no text")
	}
	return ensurePlaceholders(prompt, agent.Inputs), nil
}

// ensurePlaceholders appends a labelled placeholder for every input the
// prompt does not reference yet.
func ensurePlaceholders(prompt string, inputs []string) string {
	probe := make(map[string]any, len(inputs))
	for _, in := range inputs {
		probe[in] = ""
	}
	_, unused := engine.RenderPrompt(prompt, probe)
	if len(unused) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(prompt, "\n"))
	b.WriteString("\n")
	for _, in := range inputs {
		for _, u := range unused {
			if u == in {
				name := engine.Normalize(in)
				fmt.Fprintf(&b, "\n%s: {{%s}}", name, name)
			}
		}
	}
	return b.String()
}
