package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "agent-architect/backend/internal/engine"

// instruments groups the engine's spans and counters. Without a configured
// provider the global otel no-op implementations are used.
type instruments struct {
	tracer        trace.Tracer
	invocations   metric.Int64Counter
	parseFailures metric.Int64Counter
	advisories    metric.Int64Counter
	executions    metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	ins := &instruments{tracer: otel.Tracer(instrumentationName)}
	// Counter creation only fails for invalid names; fall back to no-ops.
	var err error
	if ins.invocations, err = meter.Int64Counter("agentflow.agent.invocations",
		metric.WithDescription("Agent invocations by outcome")); err != nil {
		ins.invocations = noopCounter()
	}
	if ins.parseFailures, err = meter.Int64Counter("agentflow.agent.parse_failures",
		metric.WithDescription("Model responses that held no parseable JSON")); err != nil {
		ins.parseFailures = noopCounter()
	}
	if ins.advisories, err = meter.Int64Counter("agentflow.advisories",
		metric.WithDescription("Recovered anomalies by kind")); err != nil {
		ins.advisories = noopCounter()
	}
	if ins.executions, err = meter.Int64Counter("agentflow.executions",
		metric.WithDescription("Workflow executions by outcome")); err != nil {
		ins.executions = noopCounter()
	}
	return ins
}

func noopCounter() metric.Int64Counter {
	return noop.Int64Counter{}
}

func (i *instruments) countAdvisories(ctx context.Context, advisories []Advisory) {
	for _, a := range advisories {
		i.advisories.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(a.Kind))))
	}
}

func (i *instruments) countInvocation(ctx context.Context, outcome string) {
	i.invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (i *instruments) countExecution(ctx context.Context, outcome string) {
	i.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
