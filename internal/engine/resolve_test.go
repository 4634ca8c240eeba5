package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-architect/backend/pkg/models"
)

func TestResolveInputs_UpstreamWinsOverGlobals(t *testing.T) {
	producer := models.Agent{ID: "a", Outputs: []string{"text: string"}}
	consumer := models.Agent{ID: "b", Inputs: []string{"text"}}
	prior := map[string]models.AgentOutput{
		"a": {Result: map[string]any{"text: string": "from upstream"}},
	}

	got, advisories := ResolveInputs(consumer, []models.Agent{producer, consumer}, []models.Connection{conn("a", "b")},
		map[string]any{"text": "from globals"}, prior)

	assert.Empty(t, advisories)
	assert.Equal(t, map[string]any{"text": "from upstream"}, got)
}

func TestResolveInputs_FallsBackToGlobals(t *testing.T) {
	consumer := models.Agent{ID: "b", Inputs: []string{"topic: string", "tone"}}
	globals := map[string]any{"topic": "go", "tone: string": "dry"}

	got, advisories := ResolveInputs(consumer, []models.Agent{consumer}, nil, globals, nil)

	assert.Empty(t, advisories)
	assert.Equal(t, map[string]any{"topic: string": "go", "tone": "dry"}, got)
}

func TestResolveInputs_OnlyConnectedProducersCount(t *testing.T) {
	stranger := models.Agent{ID: "x", Outputs: []string{"text"}}
	consumer := models.Agent{ID: "b", Inputs: []string{"text"}}
	prior := map[string]models.AgentOutput{"x": {Result: map[string]any{"text": "unconnected"}}}

	got, advisories := ResolveInputs(consumer, []models.Agent{stranger, consumer}, nil, map[string]any{}, prior)

	assert.Empty(t, got)
	require.Len(t, advisories, 1)
	assert.Equal(t, AdvisoryUnresolvedInput, advisories[0].Kind)
	assert.Equal(t, "b", advisories[0].AgentID)
	assert.Equal(t, "text", advisories[0].Subject)
}

func TestResolveInputs_FirstConnectedProducerWins(t *testing.T) {
	first := models.Agent{ID: "p1", Outputs: []string{"draft"}}
	second := models.Agent{ID: "p2", Outputs: []string{"draft"}}
	consumer := models.Agent{ID: "c", Inputs: []string{"draft"}}
	prior := map[string]models.AgentOutput{
		"p1": {Result: map[string]any{"draft": "one"}},
		"p2": {Result: map[string]any{"draft": "two"}},
	}
	conns := []models.Connection{conn("p2", "c"), conn("p1", "c")}

	got, _ := ResolveInputs(consumer, []models.Agent{first, second, consumer}, conns, nil, prior)
	assert.Equal(t, "two", got["draft"])
}

func TestResolveInputs_SkipsProducerWithoutValue(t *testing.T) {
	empty := models.Agent{ID: "p1", Outputs: []string{"draft"}}
	full := models.Agent{ID: "p2", Outputs: []string{"draft: text"}}
	consumer := models.Agent{ID: "c", Inputs: []string{"draft"}}
	prior := map[string]models.AgentOutput{
		"p1": {Result: map[string]any{}},
		"p2": {Result: map[string]any{"draft": "two"}},
	}
	conns := []models.Connection{conn("p1", "c"), conn("p2", "c")}

	got, advisories := ResolveInputs(consumer, []models.Agent{empty, full, consumer}, conns, nil, prior)
	assert.Empty(t, advisories)
	assert.Equal(t, "two", got["draft"])
}
