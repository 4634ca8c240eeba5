package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agent-architect/backend/internal/logging"
	"agent-architect/backend/pkg/models"
)

// Model is the language model the engine delegates to. Generate returns the
// raw response text, which may be wrapped in markdown.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Invocation is the full record of one agent call.
type Invocation struct {
	Output     models.AgentOutput
	Prompt     string
	Response   string
	ParseError error
	Advisories []Advisory
}

// Invoker runs single agents against a Model.
type Invoker struct {
	model  Model
	logger *logging.Logger
	ins    *instruments
}

// NewInvoker creates an Invoker. A nil logger discards output.
func NewInvoker(model Model, logger *logging.Logger) *Invoker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Invoker{model: model, logger: logger, ins: newInstruments()}
}

// Invoke renders the agent's prompt with inputs, calls the model and coerces
// the response onto the agent's declared outputs. A failed model call is
// returned as *ModelInvocationError. An unparseable response is not an
// error: every output is set to ParseFailurePlaceholder and the parse error
// is kept in Invocation.ParseError.
func (i *Invoker) Invoke(ctx context.Context, agent models.Agent, inputs map[string]any) (*Invocation, error) {
	ctx, span := i.ins.tracer.Start(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent.id", agent.ID),
		attribute.String("agent.name", agent.Name),
	))
	var err error
	defer func() { endSpan(span, err) }()

	log := i.logger.WithAgent(agent.ID, agent.Name)
	prompt, unused := BuildPrompt(agent, inputs)

	inv := &Invocation{Prompt: prompt}
	for _, name := range unused {
		inv.Advisories = append(inv.Advisories, Advisory{
			Kind:    AdvisoryUnusedInput,
			AgentID: agent.ID,
			Subject: name,
			Detail:  "no placeholder in the prompt refers to this input",
		})
	}

	log.Debug("invoking model", "prompt_bytes", len(prompt))
	inv.Response, err = i.model.Generate(ctx, prompt)
	if err != nil {
		i.ins.countInvocation(ctx, "model_error")
		err = &ModelInvocationError{AgentID: agent.ID, AgentName: agent.Name, Err: err}
		return nil, err
	}

	payload, perr := ExtractJSON(inv.Response)
	if perr != nil {
		var parseErr *ResponseParseError
		if errors.As(perr, &parseErr) {
			log.Warn("failed to parse model response", "error", parseErr.Err, "response_bytes", len(parseErr.Raw))
		}
		i.ins.countInvocation(ctx, "parse_error")
		i.ins.parseFailures.Add(ctx, 1)
		inv.ParseError = perr
		inv.Output = FailedOutput(agent, perr)
		inv.Advisories = append(inv.Advisories, Advisory{
			Kind:    AdvisoryParseFailure,
			AgentID: agent.ID,
			Subject: agent.Name,
			Detail:  perr.Error(),
		})
		i.report(ctx, log, inv.Advisories)
		return inv, nil
	}

	var coerced []Advisory
	inv.Output, coerced = CoerceOutput(agent, payload)
	inv.Advisories = append(inv.Advisories, coerced...)
	i.report(ctx, log, inv.Advisories)
	i.ins.countInvocation(ctx, "ok")
	return inv, nil
}

func (i *Invoker) report(ctx context.Context, log *logging.Logger, advisories []Advisory) {
	for _, a := range advisories {
		log.Warn(a.Detail, "kind", a.Kind, "subject", a.Subject)
	}
	i.ins.countAdvisories(ctx, advisories)
}
