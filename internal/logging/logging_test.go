package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLogger_JSONFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.WithWorkflow("wf-1").WithAgent("a1", "Writer").Warn("missing output", "output", "summary")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "wf-1", entry["workflow_id"])
	assert.Equal(t, "a1", entry["agent_id"])
	assert.Equal(t, "Writer", entry["agent"])
	assert.Equal(t, "summary", entry["output"])
}

func TestLogger_SetLevelAppliesToDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "error", Format: "text", Output: &buf})
	child := logger.WithExecution("exec-1")

	child.Info("before")
	assert.Zero(t, buf.Len())

	logger.SetLevel("debug")
	child.Debug("after")
	assert.Contains(t, buf.String(), "after")
	assert.Contains(t, buf.String(), "execution_id=exec-1")
}
