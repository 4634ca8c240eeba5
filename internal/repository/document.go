package repository

import (
	_ "embed"
	"strings"
	"time"

	"github.com/google/uuid"

	"agent-architect/backend/pkg/models"
)

//go:embed migrations/postgres.sql
var postgresSchema string

//go:embed migrations/sqlite.sql
var sqliteSchema string

// statements splits a schema file on semicolons.
func statements(schema string) []string {
	var out []string
	for _, s := range strings.Split(schema, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// prepareWorkflow fills the fields a new workflow may omit.
func prepareWorkflow(w *models.Workflow, now time.Time) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = models.WorkflowStatusDraft
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if w.Agents == nil {
		w.Agents = []models.Agent{}
	}
	if w.Flow.Connections == nil {
		w.Flow.Connections = []models.Connection{}
	}
}

func prepareUser(u *models.User, now time.Time) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}
