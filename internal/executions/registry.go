// Package executions keeps the in-memory record of workflow runs. Each run
// gets an execution id under which its lifecycle updates accumulate until a
// retention window after the run ends.
package executions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agent-architect/backend/internal/engine"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/pkg/models"
)

var (
	// ErrNotFound is returned for unknown or already expired execution ids.
	ErrNotFound = errors.New("execution not found")
	// ErrCompleted is returned when interrupting an execution that has
	// already ended.
	ErrCompleted = errors.New("execution already completed")
)

// InterruptedMessage is the message of the error update appended by Interrupt.
const InterruptedMessage = "execution interrupted"

// FinishFunc is called once a run ends, whether it finished or failed.
// Interrupted runs call it when the orchestrator returns.
type FinishFunc func(executionID string, result *engine.ExecutionResult, err error)

// Config configures a Registry.
type Config struct {
	Retention   time.Duration
	Parallelism int
}

type entry struct {
	workflowID  string
	userID      string
	updates     []models.ExecutionUpdate
	complete    bool
	completedAt time.Time
	changed     chan struct{}
}

// Registry runs workflows asynchronously and records their updates. Entries
// are removed by SweepExpired once Retention has passed since their terminal
// update. Entries whose run never ends are never removed, and nothing
// survives a process restart.
type Registry struct {
	invoker *engine.Invoker
	logger  *logging.Logger
	cfg     Config
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

// NewRegistry creates a Registry that invokes agents through invoker.
func NewRegistry(invoker *engine.Invoker, cfg Config, logger *logging.Logger) *Registry {
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		invoker: invoker,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// SetClock replaces the registry's time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *Registry) clock() time.Time {
	r.mu.RLock()
	now := r.now
	r.mu.RUnlock()
	return now()
}

// Start registers a new execution of workflow and runs it in the background.
// It returns as soon as the execution id exists. The run is detached from
// ctx cancellation but keeps its values.
func (r *Registry) Start(ctx context.Context, workflow models.Workflow, globals map[string]any, onFinish FinishFunc) string {
	id := r.register(workflow.ID, workflow.UserID)
	log := r.logger.WithWorkflow(workflow.ID).WithExecution(id)

	orch := engine.NewOrchestrator(workflow, r.invoker,
		engine.WithLogger(log),
		engine.WithParallelism(r.cfg.Parallelism),
		engine.WithClock(r.clock),
		engine.WithUpdateHandler(func(u models.ExecutionUpdate) { r.append(id, u) }),
	)

	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		orch.Initialize()
		result, err := orch.Execute(runCtx, globals)
		if err != nil {
			log.Warn("execution ended with error", "error", err)
		} else {
			log.Info("execution finished")
		}
		if onFinish != nil {
			onFinish(id, result, err)
		}
	}()
	return id
}

// Wait blocks until every started run has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) register(workflowID, userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := fmt.Sprintf("%s-%d", workflowID, r.now().UnixMilli())
	id := base
	for n := 2; ; n++ {
		if _, taken := r.entries[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
	r.entries[id] = &entry{workflowID: workflowID, userID: userID, changed: make(chan struct{})}
	return id
}

// append records u. Updates arriving after a terminal update are dropped,
// which is how the rest of an interrupted run is discarded.
func (r *Registry) append(id string, u models.ExecutionUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.complete {
		return
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = r.now()
	}
	e.updates = append(e.updates, u)
	if u.Type.Terminal() {
		e.complete = true
		e.completedAt = u.Timestamp
	}
	close(e.changed)
	e.changed = make(chan struct{})
}

// Poll returns every update recorded for id so far.
func (r *Registry) Poll(id string) (models.ExecutionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return models.ExecutionSnapshot{}, ErrNotFound
	}
	updates := make([]models.ExecutionUpdate, len(e.updates))
	copy(updates, e.updates)
	return models.ExecutionSnapshot{
		ExecutionID: id,
		WorkflowID:  e.workflowID,
		UserID:      e.userID,
		Updates:     updates,
		IsComplete:  e.complete,
	}, nil
}

// Updates returns the updates of id from index from on, whether the
// execution is complete, and a channel that is closed on the next change.
func (r *Registry) Updates(id string, from int) ([]models.ExecutionUpdate, bool, <-chan struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false, nil, ErrNotFound
	}
	if from < 0 {
		from = 0
	}
	var updates []models.ExecutionUpdate
	if from < len(e.updates) {
		updates = make([]models.ExecutionUpdate, len(e.updates)-from)
		copy(updates, e.updates[from:])
	}
	return updates, e.complete, e.changed, nil
}

// Interrupt marks id failed. The running agent call is not cancelled; its
// result and every later update are discarded.
func (r *Registry) Interrupt(id string) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	complete := ok && e.complete
	r.mu.RUnlock()

	switch {
	case !ok:
		return ErrNotFound
	case complete:
		return ErrCompleted
	}
	r.append(id, models.ExecutionUpdate{Type: models.UpdateError, Message: InterruptedMessage})
	r.logger.WithExecution(id).Info("execution interrupted")
	return nil
}

// SweepExpired removes entries whose terminal update is older than the
// retention window and returns how many were removed.
func (r *Registry) SweepExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if e.complete && now.Sub(e.completedAt) >= r.cfg.Retention {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.SweepExpired(r.clock()); n > 0 {
				r.logger.Debug("swept expired executions", "count", n)
			}
		}
	}
}

// Len returns the number of tracked executions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
