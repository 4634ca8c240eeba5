package models

// DebugAction selects what an agent debug request does.
type DebugAction string

const (
	DebugActionExecute        DebugAction = "execute"
	DebugActionGeneratePrompt DebugAction = "generate-prompt"
	DebugActionDebug          DebugAction = "debug"
)

// AgentDebugRequest runs one agent outside a workflow execution.
type AgentDebugRequest struct {
	Action DebugAction    `json:"action" validate:"required,oneof=execute generate-prompt debug"`
	Inputs map[string]any `json:"inputs"`
}

// AgentDebugResult reports the outcome of an agent debug request.
type AgentDebugResult struct {
	Success        bool         `json:"success"`
	Result         *AgentOutput `json:"result,omitempty"`
	ImprovedPrompt string       `json:"improved_prompt,omitempty"`
	Agent          *Agent       `json:"agent,omitempty"`
	AgentUpdated   bool         `json:"agent_updated,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
}

// PromptUpdate replaces one agent's prompt.
type PromptUpdate struct {
	Prompt string `json:"prompt" validate:"required"`
}
