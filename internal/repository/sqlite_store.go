package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"agent-architect/backend/pkg/models"
)

// SQLiteStore is a SQLite implementation of Repository for local runs and
// tests. Agents and flow are stored as JSON text, timestamps as UTC text.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: writes are serialized and a :memory: database lives
	// as long as the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return &SQLiteStore{db: db}, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Migrate creates missing tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range statements(sqliteSchema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// CreateWorkflow inserts a workflow.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, w *models.Workflow) error {
	prepareWorkflow(w, time.Now().UTC())
	agents, flow, err := encodeDocument(w)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO workflows ("+workflowColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		w.ID, w.UserID, w.Name, w.Description, w.ProblemStatement, agents, flow, string(w.Status),
		nullableTime(w.LastRun), formatTime(w.CreatedAt), formatTime(w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by id and owner.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id, userID string) (*models.Workflow, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = ? AND user_id = ?", id, userID)
	w, err := scanSQLiteWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return w, nil
}

// ListWorkflows lists a user's workflows, most recently updated first.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, userID string) ([]*models.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*models.Workflow{}
	for rows.Next() {
		w, err := scanSQLiteWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow replaces a stored workflow.
func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, w *models.Workflow) error {
	w.UpdatedAt = time.Now().UTC()
	agents, flow, err := encodeDocument(w)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, description = ?, problem_statement = ?, agents = ?, flow = ?,
		 status = ?, last_run = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		w.Name, w.Description, w.ProblemStatement, agents, flow, string(w.Status),
		nullableTime(w.LastRun), formatTime(w.UpdatedAt), w.ID, w.UserID)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return expectAffected(res)
}

// DeleteWorkflow removes a workflow.
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return expectAffected(res)
}

// SetLastRun records the end of an execution. UpdatedAt is left alone.
func (s *SQLiteStore) SetLastRun(ctx context.Context, id, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE workflows SET last_run = ? WHERE id = ? AND user_id = ?", formatTime(at), id, userID)
	if err != nil {
		return fmt.Errorf("failed to set last run: %w", err)
	}
	return expectAffected(res)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var (
		u                    models.User
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, email, name, created_at, updated_at FROM users WHERE email = ?", email).
		Scan(&u.ID, &u.Email, &u.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	prepareUser(u, time.Now().UTC())
	_, err := s.db.ExecContext(ctx, "INSERT INTO users (id, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Email, u.Name, formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func encodeDocument(w *models.Workflow) (agents, flow string, err error) {
	a, err := json.Marshal(w.Agents)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode agents: %w", err)
	}
	f, err := json.Marshal(w.Flow)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode flow: %w", err)
	}
	return string(a), string(f), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteWorkflow(row scanner) (*models.Workflow, error) {
	var (
		w                    models.Workflow
		agents, flow, status string
		lastRun              sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Description, &w.ProblemStatement,
		&agents, &flow, &status, &lastRun, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(agents), &w.Agents); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}
	if err := json.Unmarshal([]byte(flow), &w.Flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}
	w.Status = models.WorkflowStatus(status)
	if lastRun.Valid {
		t, err := parseTime(lastRun.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_run: %w", err)
		}
		w.LastRun = &t
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &w, nil
}
