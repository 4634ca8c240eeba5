package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agent-architect/backend/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of Repository. Agents and
// flow are stored as JSONB.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const workflowColumns = "id, user_id, name, description, problem_statement, agents, flow, status, last_run, created_at, updated_at"

func pgNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Migrate creates missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range statements(postgresSchema) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// CreateWorkflow inserts a workflow.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, w *models.Workflow) error {
	prepareWorkflow(w, pgNow())
	_, err := s.db.Exec(ctx,
		"INSERT INTO workflows ("+workflowColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		w.ID, w.UserID, w.Name, w.Description, w.ProblemStatement, w.Agents, w.Flow, string(w.Status), w.LastRun, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by id and owner.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id, userID string) (*models.Workflow, error) {
	row := s.db.QueryRow(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1 AND user_id = $2", id, userID)
	w, err := scanPgWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return w, nil
}

// ListWorkflows lists a user's workflows, most recently updated first.
func (s *PostgresStore) ListWorkflows(ctx context.Context, userID string) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE user_id = $1 ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*models.Workflow{}
	for rows.Next() {
		w, err := scanPgWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow replaces a stored workflow.
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, w *models.Workflow) error {
	w.UpdatedAt = pgNow()
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET name = $1, description = $2, problem_statement = $3, agents = $4, flow = $5,
		 status = $6, last_run = $7, updated_at = $8 WHERE id = $9 AND user_id = $10`,
		w.Name, w.Description, w.ProblemStatement, w.Agents, w.Flow, string(w.Status), w.LastRun, w.UpdatedAt, w.ID, w.UserID)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id, userID string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM workflows WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastRun records the end of an execution. UpdatedAt is left alone.
func (s *PostgresStore) SetLastRun(ctx context.Context, id, userID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, "UPDATE workflows SET last_run = $1 WHERE id = $2 AND user_id = $3", at.UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to set last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, "SELECT id, email, name, created_at, updated_at FROM users WHERE email = $1", email).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user.
func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	prepareUser(u, pgNow())
	_, err := s.db.Exec(ctx, "INSERT INTO users (id, email, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		u.ID, u.Email, u.Name, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func scanPgWorkflow(row pgx.Row) (*models.Workflow, error) {
	var (
		w      models.Workflow
		status string
	)
	err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Description, &w.ProblemStatement,
		&w.Agents, &w.Flow, &status, &w.LastRun, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Status = models.WorkflowStatus(status)
	return &w, nil
}
