package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"agent-architect/backend/internal/logging"
	"agent-architect/backend/pkg/models"
)

// State is the lifecycle state of an Orchestrator.
type State string

const (
	StateIdle      State = "idle"
	StateExecuting State = "executing"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
)

// ErrAlreadyExecuted is returned when Execute is called twice on one
// Orchestrator.
var ErrAlreadyExecuted = errors.New("orchestrator has already executed")

// ExecutionResult is what a successful run returns. Results is the union of
// every agent's outputs keyed by declared output name; a later agent's
// output overwrites an earlier one with the same name.
type ExecutionResult struct {
	Results      map[string]any                `json:"results"`
	AgentOutputs map[string]models.AgentOutput `json:"agent_outputs"`
	Order        []string                      `json:"order"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParallelism lets up to n ready agents run at once. Agents only become
// ready once every upstream producer has finished. A cyclic graph always
// runs one agent at a time.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUpdateHandler registers the sink for lifecycle events.
func WithUpdateHandler(fn func(models.ExecutionUpdate)) Option {
	return func(o *Orchestrator) { o.onUpdate = fn }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator executes one workflow run. It is single use.
type Orchestrator struct {
	workflow    models.Workflow
	invoker     *Invoker
	logger      *logging.Logger
	parallelism int
	onUpdate    func(models.ExecutionUpdate)
	now         func() time.Time
	ins         *instruments

	mu    sync.Mutex
	state State
}

// NewOrchestrator creates an idle Orchestrator for workflow.
func NewOrchestrator(workflow models.Workflow, invoker *Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workflow:    workflow,
		invoker:     invoker,
		logger:      logging.NewNop(),
		parallelism: 1,
		now:         time.Now,
		ins:         newInstruments(),
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithWorkflow(workflow.ID)
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Initialize announces the workflow.
func (o *Orchestrator) Initialize() {
	o.logger.Info("orchestrator initialized", "workflow", o.workflow.Name, "agents", len(o.workflow.Agents))
	o.emit(models.ExecutionUpdate{
		Type:    models.UpdateStart,
		Message: fmt.Sprintf("Initialized workflow: %s", o.workflow.Name),
		Data:    map[string]any{"workflow": o.workflow.Name},
	})
}

// Execute runs every agent once, in dependency order, and returns the merged
// results. The first agent whose model call fails aborts the run: an error
// update is emitted and the error is returned. Nothing is retried.
func (o *Orchestrator) Execute(ctx context.Context, globals map[string]any) (result *ExecutionResult, err error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, ErrAlreadyExecuted
	}
	o.state = StateExecuting
	o.mu.Unlock()

	ctx, span := o.ins.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", o.workflow.ID),
		attribute.Int("workflow.agents", len(o.workflow.Agents)),
	))
	defer func() {
		endSpan(span, err)
		if err != nil {
			o.setState(StateFailed)
			o.ins.countExecution(ctx, "failed")
			o.logger.Error("workflow execution failed", "error", err)
			o.emit(models.ExecutionUpdate{Type: models.UpdateError, Message: err.Error()})
			return
		}
		o.setState(StateFinished)
		o.ins.countExecution(ctx, "finished")
	}()

	graph, advisories := NewGraph(o.workflow.Agents, o.workflow.Flow.Connections)
	order, cyclic := graph.Order()
	if cyclic {
		advisories = append(advisories, cycleAdvisory(len(o.workflow.Agents)))
	}
	o.report(ctx, o.logger, advisories)

	startData := map[string]any{"order": order}
	if len(advisories) > 0 {
		startData["advisories"] = advisories
	}
	o.emit(models.ExecutionUpdate{
		Type:    models.UpdateStart,
		Message: "Starting workflow execution: " + o.plan(graph, order),
		Data:    startData,
	})

	pool := make(map[string]any, len(globals))
	maps.Copy(pool, globals)
	results := make(map[string]any)
	agentOutputs := make(map[string]models.AgentOutput, len(order))
	executed := make(map[string]bool, len(order))

	sched := newScheduler(graph, order, cyclic || o.parallelism == 1)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution stopped: %w", err)
		}
		var wave []models.Agent
		for _, id := range sched.next(o.parallelism) {
			if executed[id] {
				continue
			}
			executed[id] = true
			agent, _ := graph.Agent(id)
			wave = append(wave, agent)
		}
		if len(wave) == 0 {
			break
		}

		outputs, err := o.runWave(ctx, graph, wave, pool, agentOutputs)
		if err != nil {
			return nil, err
		}
		for _, agent := range wave {
			out := outputs[agent.ID]
			agentOutputs[agent.ID] = out
			for _, name := range agent.Outputs {
				v, ok := out.Result[name]
				if !ok {
					continue
				}
				results[name] = v
				pool[name] = v
			}
			sched.markDone(agent.ID)
		}
	}

	o.logger.Info("workflow execution completed", "agents", len(agentOutputs))
	o.emit(models.ExecutionUpdate{
		Type:    models.UpdateComplete,
		Message: "Workflow execution completed",
		Data:    map[string]any{"results": results},
	})
	return &ExecutionResult{Results: results, AgentOutputs: agentOutputs, Order: order}, nil
}

type agentRun struct {
	inputs map[string]any
	inv    *Invocation
	err    error
}

// runWave resolves inputs for every agent in the wave against the same pool,
// invokes them concurrently, and emits completions in wave order.
func (o *Orchestrator) runWave(ctx context.Context, graph *Graph, wave []models.Agent, pool map[string]any, prior map[string]models.AgentOutput) (map[string]models.AgentOutput, error) {
	runs := make([]agentRun, len(wave))
	for i, agent := range wave {
		inputs, advisories := graph.ResolveInputs(agent, pool, prior)
		o.report(ctx, o.logger.WithAgent(agent.ID, agent.Name), advisories)
		runs[i].inputs = inputs

		data := map[string]any{"inputs": inputs}
		if len(advisories) > 0 {
			data["advisories"] = advisories
		}
		o.emit(models.ExecutionUpdate{
			Type:    models.UpdateAgentStart,
			Message: "Executing agent: " + agent.Name,
			Agent:   &agent,
			Data:    data,
		})
	}

	var g errgroup.Group
	g.SetLimit(o.parallelism)
	for i := range wave {
		g.Go(func() error {
			runs[i].inv, runs[i].err = o.invoker.Invoke(ctx, wave[i], runs[i].inputs)
			return runs[i].err
		})
	}
	_ = g.Wait()

	outputs := make(map[string]models.AgentOutput, len(wave))
	for i, agent := range wave {
		if runs[i].err != nil {
			return nil, runs[i].err
		}
		inv := runs[i].inv
		outputs[agent.ID] = inv.Output

		data := map[string]any{
			"inputs":    runs[i].inputs,
			"outputs":   inv.Output.Result,
			"reasoning": inv.Output.Reasoning,
		}
		if len(inv.Advisories) > 0 {
			data["advisories"] = inv.Advisories
		}
		o.emit(models.ExecutionUpdate{
			Type:    models.UpdateAgentComplete,
			Message: "Completed agent: " + agent.Name,
			Agent:   &agent,
			Data:    data,
		})
	}
	return outputs, nil
}

func (o *Orchestrator) plan(graph *Graph, order []string) string {
	names := make([]string, 0, len(order))
	for _, id := range order {
		if a, ok := graph.Agent(id); ok {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, " -> ")
}

func (o *Orchestrator) report(ctx context.Context, log *logging.Logger, advisories []Advisory) {
	for _, a := range advisories {
		log.Warn(a.Detail, "kind", a.Kind, "subject", a.Subject)
	}
	o.ins.countAdvisories(ctx, advisories)
}

func (o *Orchestrator) emit(u models.ExecutionUpdate) {
	if u.Timestamp.IsZero() {
		u.Timestamp = o.now()
	}
	if o.onUpdate != nil {
		o.onUpdate(u)
	}
}
