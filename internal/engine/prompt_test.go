package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-architect/backend/pkg/models"
)

func TestRenderPrompt_PlaceholderForms(t *testing.T) {
	inputs := map[string]any{"count: number": 3, "topic": "gophers"}

	tests := []struct {
		template string
		want     string
	}{
		{"n={{count: number}}", "n=3"},
		{"n={{count}}", "n=3"},
		{"n={count}", "n=3"},
		{"n={{ count : int }}", "n=3"},
		{"about {{topic}} and {topic}", "about gophers and gophers"},
		{"about {{topic: string}}", "about gophers"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got, _ := RenderPrompt(tt.template, inputs)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderPrompt_LeavesUnknownPlaceholdersAndReportsUnused(t *testing.T) {
	got, unused := RenderPrompt(`Use {{missing}} and {"k": 1}`, map[string]any{"extra": "x", "other": 1})
	assert.Equal(t, `Use {{missing}} and {"k": 1}`, got)
	assert.Equal(t, []string{"extra", "other"}, unused)
}

func TestRenderPrompt_ValuesAreNotRescanned(t *testing.T) {
	got, unused := RenderPrompt("{{a}} / {{b}}", map[string]any{"a": "{b}", "b": "B"})
	assert.Equal(t, "{b} / B", got)
	assert.Empty(t, unused)
}

func TestRenderPrompt_Stringify(t *testing.T) {
	got, _ := RenderPrompt("{{obj}}|{{list}}|{{none}}|{{flag}}|{{n}}", map[string]any{
		"obj":  map[string]any{"k": "v"},
		"list": []any{"x"},
		"none": nil,
		"flag": true,
		"n":    2.5,
	})
	assert.Equal(t, "{\n  \"k\": \"v\"\n}|[\n  \"x\"\n]|null|true|2.5", got)
}

func TestRenderPrompt_StringifyTypedValues(t *testing.T) {
	type point struct {
		X int `json:"x"`
	}
	var nilMap *map[string]string
	got, _ := RenderPrompt("{{list}}|{{dict}}|{{pt}}|{{ptr}}|{{nilptr}}|{{n}}", map[string]any{
		"list":   []string{"a", "b"},
		"dict":   map[string]string{"k": "v"},
		"pt":     point{X: 1},
		"ptr":    &point{X: 2},
		"nilptr": nilMap,
		"n":      7,
	})
	assert.Equal(t, "[\n  \"a\",\n  \"b\"\n]|{\n  \"k\": \"v\"\n}|{\n  \"x\": 1\n}|{\n  \"x\": 2\n}|null|7", got)
}

func TestOutputSchema(t *testing.T) {
	schema := OutputSchema(models.Agent{Name: "Writer", Outputs: []string{"summary: string", "score: number", "notes", "notes: text"}})

	b, err := json.Marshal(schema)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "object", decoded["type"])
	assert.Equal(t, false, decoded["additionalProperties"])
	assert.Equal(t, []any{"summary", "score", "notes"}, decoded["required"])

	props := decoded["properties"].(map[string]any)
	assert.Equal(t, "string", props["summary"].(map[string]any)["type"])
	assert.Equal(t, "number", props["score"].(map[string]any)["type"])
	assert.NotContains(t, props["notes"].(map[string]any), "type")
}

func TestBuildPrompt(t *testing.T) {
	agent := models.Agent{
		Name:    "Summarizer",
		Prompt:  "Summarize {{text}}.",
		Inputs:  []string{"text"},
		Outputs: []string{"summary: string", "keywords: array"},
	}

	prompt, unused := BuildPrompt(agent, map[string]any{"text": "hello world"})
	assert.Empty(t, unused)
	assert.True(t, strings.HasPrefix(prompt, "Summarize hello world."))
	assert.Contains(t, prompt, `"summary": "value"`)
	assert.Contains(t, prompt, "exactly these keys: summary, keywords.")
	assert.Contains(t, prompt, `"additionalProperties": false`)
	assert.NotContains(t, prompt, "summary: string\":")
}
