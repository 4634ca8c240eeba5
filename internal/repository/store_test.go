package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-architect/backend/internal/config"
	"agent-architect/backend/pkg/models"
)

func sampleWorkflow(userID, name string) *models.Workflow {
	return &models.Workflow{
		UserID:           userID,
		Name:             name,
		Description:      "summarize articles",
		ProblemStatement: "Summarize a news article",
		Agents: []models.Agent{
			{ID: "fetch", Name: "Fetcher", Prompt: "Fetch {{url}}", Inputs: []string{"url: string"}, Outputs: []string{"article"}},
			{ID: "sum", Name: "Summarizer", Prompt: "Summarize {{article}}", Inputs: []string{"article"}, Outputs: []string{"summary"}},
		},
		Flow: models.WorkflowFlow{
			Description: "fetch then summarize",
			Connections: []models.Connection{{From: "fetch", To: "sum", Description: "article text"}},
		},
	}
}

// testRepository runs the behaviour every Repository implementation shares.
func testRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrations are idempotent")
	require.NoError(t, repo.Ping(ctx))

	t.Run("users", func(t *testing.T) {
		_, err := repo.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)

		u := &models.User{Email: "ada@example.com", Name: "Ada"}
		require.NoError(t, repo.CreateUser(ctx, u))
		assert.NotEmpty(t, u.ID)

		got, err := repo.GetUserByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "Ada", got.Name)
		assert.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Millisecond)

		assert.Error(t, repo.CreateUser(ctx, &models.User{Email: "ada@example.com"}), "email is unique")
	})

	t.Run("workflow lifecycle", func(t *testing.T) {
		w := sampleWorkflow("user-1", "News")
		require.NoError(t, repo.CreateWorkflow(ctx, w))
		assert.NotEmpty(t, w.ID)
		assert.Equal(t, models.WorkflowStatusDraft, w.Status)

		got, err := repo.GetWorkflow(ctx, w.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, w.Agents, got.Agents)
		assert.Equal(t, w.Flow, got.Flow)
		assert.Equal(t, w.ProblemStatement, got.ProblemStatement)
		assert.Nil(t, got.LastRun)

		_, err = repo.GetWorkflow(ctx, w.ID, "someone-else")
		assert.ErrorIs(t, err, ErrNotFound)

		got.Name = "News v2"
		got.Status = models.WorkflowStatusActive
		got.Agents[1].Prompt = "Summarize briefly: {{article}}"
		require.NoError(t, repo.UpdateWorkflow(ctx, got))

		again, err := repo.GetWorkflow(ctx, w.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "News v2", again.Name)
		assert.Equal(t, models.WorkflowStatusActive, again.Status)
		assert.Equal(t, "Summarize briefly: {{article}}", again.Agents[1].Prompt)

		ran := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
		require.NoError(t, repo.SetLastRun(ctx, w.ID, "user-1", ran))
		again, err = repo.GetWorkflow(ctx, w.ID, "user-1")
		require.NoError(t, err)
		require.NotNil(t, again.LastRun)
		assert.True(t, ran.Equal(*again.LastRun))

		require.NoError(t, repo.DeleteWorkflow(ctx, w.ID, "user-1"))
		_, err = repo.GetWorkflow(ctx, w.ID, "user-1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.DeleteWorkflow(ctx, w.ID, "user-1"), ErrNotFound)
		assert.ErrorIs(t, repo.SetLastRun(ctx, w.ID, "user-1", ran), ErrNotFound)
	})

	t.Run("update of missing workflow", func(t *testing.T) {
		w := sampleWorkflow("user-1", "ghost")
		w.ID = "does-not-exist"
		assert.ErrorIs(t, repo.UpdateWorkflow(ctx, w), ErrNotFound)
	})

	t.Run("list is scoped and ordered", func(t *testing.T) {
		first := sampleWorkflow("user-2", "first")
		require.NoError(t, repo.CreateWorkflow(ctx, first))
		time.Sleep(5 * time.Millisecond)
		second := sampleWorkflow("user-2", "second")
		require.NoError(t, repo.CreateWorkflow(ctx, second))
		require.NoError(t, repo.CreateWorkflow(ctx, sampleWorkflow("user-3", "other")))

		list, err := repo.ListWorkflows(ctx, "user-2")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "second", list[0].Name)
		assert.Equal(t, "first", list[1].Name)

		time.Sleep(5 * time.Millisecond)
		require.NoError(t, repo.UpdateWorkflow(ctx, first))
		list, err = repo.ListWorkflows(ctx, "user-2")
		require.NoError(t, err)
		assert.Equal(t, "first", list[0].Name)

		empty, err := repo.ListWorkflows(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	testRepository(t, store)
}

func TestSQLiteStore_File(t *testing.T) {
	path := t.TempDir() + "/agentflow.db"
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	w := sampleWorkflow("u", "persisted")
	require.NoError(t, store.CreateWorkflow(ctx, w))
	store.Close()

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetWorkflow(ctx, w.ID, "u")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.DB.Driver = "sqlite"
	cfg.DB.Path = t.TempDir() + "/open.db"

	repo, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer repo.Close()

	list, err := repo.ListWorkflows(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)

	cfg.DB.Driver = "mysql"
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
