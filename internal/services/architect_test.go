package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-architect/backend/internal/engine"
	"agent-architect/backend/pkg/models"
)

func fixedModel(text string) engine.ModelFunc {
	return func(context.Context, string) (string, error) { return text, nil }
}

func TestArchitect_Analyze(t *testing.T) {
	var prompt string
	model := engine.ModelFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n" + `{
			"analysis": "two steps",
			"agents": [
				{"id": "r", "name": "Researcher", "prompt": "Research {{topic}}", "inputs": ["topic: string"], "outputs": ["notes: string"]},
				{"id": "w", "name": "Writer", "prompt": "Write from {{notes}}", "inputs": ["notes"], "outputs": ["article"]}
			],
			"flow": {"description": "r feeds w", "connections": [
				{"from": "r", "to": "w", "description": "notes"},
				{"from": "w", "to": "ghost", "description": "nowhere"}
			]}
		}` + "\n```", nil
	})

	design, err := NewArchitect(model, nil).Analyze(context.Background(), "write an article")
	require.NoError(t, err)
	assert.Contains(t, prompt, `"write an article"`)
	assert.Equal(t, "two steps", design.Analysis)
	require.Len(t, design.Agents, 2)
	assert.Equal(t, "r", design.Agents[0].ID)
	assert.Equal(t, []models.Connection{{From: "r", To: "w", Description: "notes"}}, design.Flow.Connections)
	require.Len(t, design.Warnings, 1)
	assert.Contains(t, design.Warnings[0], "ghost")
}

func TestArchitect_AnalyzeRepairsAgents(t *testing.T) {
	model := fixedModel(`{
		"analysis": "x",
		"agents": [
			{"name": "A", "prompt": "one"},
			{"id": "dup", "name": "B", "prompt": "two", "outputs": ["o", "o: string"]},
			{"id": "dup", "name": "C", "prompt": "three"},
			{"id": "bad", "name": " ", "prompt": "four"}
		]
	}`)

	design, err := NewArchitect(model, nil).Analyze(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, design.Agents, 3)

	assert.NotEmpty(t, design.Agents[0].ID)
	assert.Equal(t, []string{}, design.Agents[0].Inputs)
	assert.Equal(t, "dup", design.Agents[1].ID)
	assert.Equal(t, "dup-2", design.Agents[2].ID)

	// no flow in the response: agents are chained in order
	require.Len(t, design.Flow.Connections, 2)
	assert.Equal(t, design.Agents[0].ID, design.Flow.Connections[0].From)
	assert.Equal(t, "dup", design.Flow.Connections[0].To)
	assert.Equal(t, "dup-2", design.Flow.Connections[1].To)

	joined := strings.Join(design.Warnings, "\n")
	assert.Contains(t, joined, "agent 4 dropped")
	assert.Contains(t, joined, `duplicate agent id "dup"`)
	assert.Contains(t, joined, `declares output "o" more than once`)
}

func TestArchitect_AnalyzeFailures(t *testing.T) {
	ctx := context.Background()

	_, err := NewArchitect(fixedModel(`{"agents": []}`), nil).Analyze(ctx, "p")
	assert.ErrorIs(t, err, ErrNoAgents)

	_, err = NewArchitect(fixedModel("I cannot help"), nil).Analyze(ctx, "p")
	assert.ErrorContains(t, err, "failed to parse architect response")

	_, err = NewArchitect(fixedModel(`{"agents": "nope"}`), nil).Analyze(ctx, "p")
	assert.ErrorContains(t, err, "unexpected shape")

	boom := errors.New("quota exceeded")
	failing := engine.ModelFunc(func(context.Context, string) (string, error) { return "", boom })
	_, err = NewArchitect(failing, nil).Analyze(ctx, "p")
	var mie *engine.ModelInvocationError
	require.ErrorAs(t, err, &mie)
	assert.Equal(t, "architect", mie.AgentName)
	assert.ErrorIs(t, err, boom)
}

func TestSequentialFlow(t *testing.T) {
	assert.Empty(t, SequentialFlow(nil).Connections)
	assert.Empty(t, SequentialFlow([]models.Agent{{ID: "a"}}).Connections)

	flow := SequentialFlow([]models.Agent{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}})
	assert.Equal(t, []models.Connection{{From: "a", To: "b", Description: "Data flows from A to B"}}, flow.Connections)
}

func TestArchitect_ImprovePrompt(t *testing.T) {
	agent := models.Agent{ID: "w", Name: "Writer", Prompt: "old", Inputs: []string{"notes: string", "tone"}, Outputs: []string{"article"}}

	t.Run("json answer", func(t *testing.T) {
		var seen string
		model := engine.ModelFunc(func(_ context.Context, p string) (string, error) {
			seen = p
			return `{"prompt": "Write with {{notes}} in a {{tone}} tone"}`, nil
		})
		got, err := NewArchitect(model, nil).ImprovePrompt(context.Background(), agent)
		require.NoError(t, err)
		assert.Equal(t, "Write with {{notes}} in a {{tone}} tone", got)
		assert.Contains(t, seen, "Current prompt:\nold")
	})

	t.Run("raw text with missing placeholder", func(t *testing.T) {
		got, err := NewArchitect(fixedModel("Write using {{notes}}."), nil).ImprovePrompt(context.Background(), agent)
		require.NoError(t, err)
		assert.Equal(t, "Write using {{notes}}.\n\ntone: {{tone}}", got)
	})

	t.Run("empty answer", func(t *testing.T) {
		_, err := NewArchitect(fixedModel("``` ```"), nil).ImprovePrompt(context.Background(), agent)
		assert.Error(t, err)
	})

	t.Run("model failure", func(t *testing.T) {
		failing := engine.ModelFunc(func(context.Context, string) (string, error) { return "", errors.New("down") })
		_, err := NewArchitect(failing, nil).ImprovePrompt(context.Background(), agent)
		var mie *engine.ModelInvocationError
		require.ErrorAs(t, err, &mie)
		assert.Equal(t, "w", mie.AgentID)
	})
}

func TestEnsurePlaceholders(t *testing.T) {
	assert.Equal(t, "use {x}", ensurePlaceholders("use {x}", []string{"x: int"}))
	assert.Equal(t, "plain\n\na: {{a}}\nb: {{b}}", ensurePlaceholders("plain\n", []string{"a", "b: list"}))
	assert.Equal(t, "nothing", ensurePlaceholders("nothing", nil))
}
