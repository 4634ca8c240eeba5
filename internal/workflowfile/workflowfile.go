// Package workflowfile reads workflow definitions from YAML documents.
package workflowfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"agent-architect/backend/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and parses the workflow file at path.
func Load(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes one workflow document. Unknown keys are rejected, every
// agent must carry an id, a name, a prompt and its outputs, and connections
// must name declared agents.
func Parse(data []byte) (*models.Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var w models.Workflow
	if err := dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("workflow file is empty")
		}
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}
	if strings.TrimSpace(w.Name) == "" {
		return nil, errors.New("workflow name is required")
	}

	ids := make(map[string]bool, len(w.Agents))
	for i := range w.Agents {
		a := &w.Agents[i]
		if a.ID == "" {
			return nil, fmt.Errorf("agent %d: id is required", i+1)
		}
		if ids[a.ID] {
			return nil, fmt.Errorf("agent %d: duplicate id %q", i+1, a.ID)
		}
		ids[a.ID] = true
		if err := validate.Struct(a); err != nil {
			return nil, fmt.Errorf("agent %q: %w", a.ID, err)
		}
		if a.Inputs == nil {
			a.Inputs = []string{}
		}
	}
	for _, c := range w.Flow.Connections {
		if !ids[c.From] || !ids[c.To] {
			return nil, fmt.Errorf("connection %s -> %s names an unknown agent", c.From, c.To)
		}
	}
	if w.Flow.Connections == nil {
		w.Flow.Connections = []models.Connection{}
	}
	if w.Status == "" {
		w.Status = models.WorkflowStatusDraft
	}
	return &w, nil
}
