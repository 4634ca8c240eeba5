// Package repository persists workflow documents and users.
package repository

import (
	"context"
	"errors"
	"time"

	"agent-architect/backend/pkg/models"
)

// ErrNotFound is returned when a document does not exist or belongs to
// another user.
var ErrNotFound = errors.New("not found")

// WorkflowStore stores workflow documents. Every lookup is scoped to the
// owning user.
type WorkflowStore interface {
	// CreateWorkflow inserts a workflow. ID, CreatedAt and UpdatedAt are set
	// when empty.
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// GetWorkflow returns the workflow with id owned by userID.
	GetWorkflow(ctx context.Context, id, userID string) (*models.Workflow, error)
	// ListWorkflows returns userID's workflows, most recently updated first.
	ListWorkflows(ctx context.Context, userID string) ([]*models.Workflow, error)
	// UpdateWorkflow replaces a stored workflow and bumps UpdatedAt.
	UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// DeleteWorkflow removes a workflow.
	DeleteWorkflow(ctx context.Context, id, userID string) error
	// SetLastRun records when an execution of the workflow ended.
	SetLastRun(ctx context.Context, id, userID string, at time.Time) error
}

// UserStore stores users.
type UserStore interface {
	// GetUserByEmail returns the user with the given email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// CreateUser inserts a user. ID and timestamps are set when empty.
	CreateUser(ctx context.Context, user *models.User) error
}

// Repository is the full storage surface of the service.
type Repository interface {
	WorkflowStore
	UserStore
	// Migrate creates missing tables.
	Migrate(ctx context.Context) error
	// Ping checks the connection.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close()
}
