package executions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-architect/backend/internal/engine"
	"agent-architect/backend/pkg/models"
)

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func testWorkflow() models.Workflow {
	return models.Workflow{
		ID:   "wf1",
		Name: "Pipeline",
		Agents: []models.Agent{
			{ID: "a", Name: "A", Prompt: "first", Outputs: []string{"text"}},
			{ID: "b", Name: "B", Prompt: "second {{text}}", Inputs: []string{"text"}, Outputs: []string{"summary"}},
		},
		Flow: models.WorkflowFlow{Connections: []models.Connection{{From: "a", To: "b"}}},
	}
}

func echoModel() engine.Model {
	return engine.ModelFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "first") {
			return `{"result":{"text":"hi"}}`, nil
		}
		return `{"result":{"summary":"HI"}}`, nil
	})
}

func newTestRegistry(model engine.Model) *Registry {
	r := NewRegistry(engine.NewInvoker(model, nil), Config{Retention: time.Hour}, nil)
	r.SetClock(func() time.Time { return epoch })
	return r
}

// waitFor blocks until id has an update of type typ.
func waitFor(t *testing.T, r *Registry, id string, typ models.UpdateType) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		updates, _, changed, err := r.Updates(id, 0)
		require.NoError(t, err)
		for _, u := range updates {
			if u.Type == typ {
				return
			}
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("timed out waiting for %s update", typ)
		}
	}
}

func types(updates []models.ExecutionUpdate) []models.UpdateType {
	out := make([]models.UpdateType, len(updates))
	for i, u := range updates {
		out[i] = u.Type
	}
	return out
}

func TestRegistry_StartAndPoll(t *testing.T) {
	r := newTestRegistry(echoModel())

	var (
		mu       sync.Mutex
		finished *engine.ExecutionResult
	)
	id := r.Start(context.Background(), testWorkflow(), map[string]any{}, func(_ string, res *engine.ExecutionResult, err error) {
		assert.NoError(t, err)
		mu.Lock()
		finished = res
		mu.Unlock()
	})
	assert.Equal(t, "wf1-1704164645000", id)

	r.Wait()
	snap, err := r.Poll(id)
	require.NoError(t, err)
	assert.True(t, snap.IsComplete)
	assert.Equal(t, "wf1", snap.WorkflowID)
	assert.Equal(t, []models.UpdateType{
		models.UpdateStart, models.UpdateStart,
		models.UpdateAgentStart, models.UpdateAgentComplete,
		models.UpdateAgentStart, models.UpdateAgentComplete,
		models.UpdateComplete,
	}, types(snap.Updates))
	for _, u := range snap.Updates {
		assert.Equal(t, epoch, u.Timestamp)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, finished)
	assert.Equal(t, map[string]any{"text": "hi", "summary": "HI"}, finished.Results)
}

func TestRegistry_PollUnknown(t *testing.T) {
	r := newTestRegistry(echoModel())
	_, err := r.Poll("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, _, err = r.Updates("nope", 0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Interrupt("nope"), ErrNotFound)
}

func TestRegistry_IDsAreUnique(t *testing.T) {
	r := newTestRegistry(echoModel())
	first := r.Start(context.Background(), testWorkflow(), nil, nil)
	second := r.Start(context.Background(), testWorkflow(), nil, nil)
	third := r.Start(context.Background(), testWorkflow(), nil, nil)
	r.Wait()

	assert.Equal(t, "wf1-1704164645000", first)
	assert.Equal(t, "wf1-1704164645000-2", second)
	assert.Equal(t, "wf1-1704164645000-3", third)
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_ModelFailureEndsWithError(t *testing.T) {
	model := engine.ModelFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection reset")
	})
	r := newTestRegistry(model)

	var gotErr error
	id := r.Start(context.Background(), testWorkflow(), nil, func(_ string, _ *engine.ExecutionResult, err error) {
		gotErr = err
	})
	r.Wait()

	snap, err := r.Poll(id)
	require.NoError(t, err)
	assert.True(t, snap.IsComplete)
	last := snap.Updates[len(snap.Updates)-1]
	assert.Equal(t, models.UpdateError, last.Type)
	assert.Contains(t, last.Message, "connection reset")

	var invErr *engine.ModelInvocationError
	assert.True(t, errors.As(gotErr, &invErr))
}

func TestRegistry_Interrupt(t *testing.T) {
	release := make(chan struct{})
	model := engine.ModelFunc(func(_ context.Context, prompt string) (string, error) {
		<-release
		return `{"result":{"text":"late"}}`, nil
	})
	r := newTestRegistry(model)
	id := r.Start(context.Background(), testWorkflow(), nil, nil)

	waitFor(t, r, id, models.UpdateAgentStart)
	require.NoError(t, r.Interrupt(id))

	snap, err := r.Poll(id)
	require.NoError(t, err)
	assert.True(t, snap.IsComplete)
	last := snap.Updates[len(snap.Updates)-1]
	assert.Equal(t, models.UpdateError, last.Type)
	assert.Equal(t, InterruptedMessage, last.Message)
	countBefore := len(snap.Updates)

	close(release)
	r.Wait()

	snap, err = r.Poll(id)
	require.NoError(t, err)
	assert.Len(t, snap.Updates, countBefore, "updates after the interrupt are discarded")
	assert.ErrorIs(t, r.Interrupt(id), ErrCompleted)
}

func TestRegistry_UpdatesCursor(t *testing.T) {
	r := newTestRegistry(echoModel())
	id := r.Start(context.Background(), testWorkflow(), nil, nil)
	r.Wait()

	all, complete, _, err := r.Updates(id, 0)
	require.NoError(t, err)
	assert.True(t, complete)

	tail, _, _, err := r.Updates(id, len(all)-1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, models.UpdateComplete, tail[0].Type)

	none, _, _, err := r.Updates(id, len(all))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRegistry_SweepExpired(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocking := engine.ModelFunc(func(context.Context, string) (string, error) {
		<-release
		return "{}", nil
	})

	r := newTestRegistry(echoModel())
	done := r.Start(context.Background(), testWorkflow(), nil, nil)
	r.Wait()

	stuck := NewRegistry(engine.NewInvoker(blocking, nil), Config{Retention: time.Hour}, nil)
	stuck.SetClock(func() time.Time { return epoch })
	running := stuck.Start(context.Background(), testWorkflow(), nil, nil)
	waitFor(t, stuck, running, models.UpdateAgentStart)

	assert.Zero(t, r.SweepExpired(epoch.Add(59*time.Minute)))
	_, err := r.Poll(done)
	require.NoError(t, err)

	assert.Equal(t, 1, r.SweepExpired(epoch.Add(time.Hour)))
	_, err = r.Poll(done)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Zero(t, stuck.SweepExpired(epoch.Add(24*time.Hour)), "running executions are kept")
	_, err = stuck.Poll(running)
	assert.NoError(t, err)
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	r := newTestRegistry(echoModel())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
