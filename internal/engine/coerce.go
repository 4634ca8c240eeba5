package engine

import (
	"fmt"
	"strings"

	"agent-architect/backend/pkg/models"
)

const (
	// ParseFailurePlaceholder replaces every output of an agent whose
	// response could not be parsed.
	ParseFailurePlaceholder = "Error: Failed to generate output"
	// DefaultReasoning is used when the model gives no reasoning.
	DefaultReasoning = "No reasoning provided"
)

// MissingOutputPlaceholder is the value given to a declared output the model
// did not produce.
func MissingOutputPlaceholder(name string) string {
	return "Missing output: " + name
}

// CoerceOutput fits a decoded model response onto the agent's declared
// outputs. The returned result has exactly one key per declared output, the
// declared name as written. Declared outputs without a value get a
// placeholder and undeclared keys are dropped; both are reported.
func CoerceOutput(agent models.Agent, payload map[string]any) (models.AgentOutput, []Advisory) {
	raw, _ := payload["result"].(map[string]any)

	var advisories []Advisory
	declared := make(map[string]bool, len(agent.Outputs))
	result := make(map[string]any, len(agent.Outputs))
	for _, f := range ParseFields(agent.Outputs) {
		declared[f.Name] = true
		if v, ok := lookup(raw, f.Raw); ok {
			result[f.Raw] = v
			continue
		}
		result[f.Raw] = MissingOutputPlaceholder(f.Name)
		advisories = append(advisories, Advisory{
			Kind:    AdvisoryMissingOutput,
			AgentID: agent.ID,
			Subject: f.Raw,
			Detail:  "declared output missing from model response",
		})
	}
	for _, k := range sortedKeys(raw) {
		if !declared[Normalize(k)] {
			advisories = append(advisories, Advisory{
				Kind:    AdvisoryUndeclaredOutput,
				AgentID: agent.ID,
				Subject: k,
				Detail:  "undeclared output dropped",
			})
		}
	}

	reasoning, _ := payload["reasoning"].(string)
	if strings.TrimSpace(reasoning) == "" {
		reasoning = DefaultReasoning
	}
	return models.AgentOutput{Result: result, Reasoning: reasoning}, advisories
}

// FailedOutput is the well-formed output of an agent whose response held no
// parseable JSON.
func FailedOutput(agent models.Agent, err error) models.AgentOutput {
	result := make(map[string]any, len(agent.Outputs))
	for _, o := range agent.Outputs {
		result[o] = ParseFailurePlaceholder
	}
	return models.AgentOutput{
		Result:    result,
		Reasoning: fmt.Sprintf("Error parsing response: %v", err),
	}
}

// Degraded reports whether out carries parse-failure placeholders.
func Degraded(out models.AgentOutput) bool {
	for _, v := range out.Result {
		if s, ok := v.(string); ok && s == ParseFailurePlaceholder {
			return true
		}
	}
	return false
}
