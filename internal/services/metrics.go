package services

import (
	"context"
	"strings"

	"signoff/internal/workflow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "signoff/internal/services"

// instruments bundles the tracer and counters used by the controller. They
// resolve against the global providers, which are no-ops until the process
// installs real ones.
type instruments struct {
	tracer      trace.Tracer
	transitions metric.Int64Counter
	signatures  metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter(instrumentationName)

	transitions, err := meter.Int64Counter("signoff.workflow.transitions",
		metric.WithDescription("Workflow-changing calls by action and outcome"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	signatures, err := meter.Int64Counter("signoff.signatures.added",
		metric.WithDescription("Signatures appended by method"),
		metric.WithUnit("{signature}"))
	if err != nil {
		return nil, err
	}

	return &instruments{
		tracer:      otel.Tracer(instrumentationName),
		transitions: transitions,
		signatures:  signatures,
	}, nil
}

// outcome is "ok" or the lower-cased error code.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(workflow.CodeOf(err)))
}

func (i *instruments) recordTransition(ctx context.Context, action string, err error) {
	i.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome(err)),
	))
}

func (i *instruments) recordSignature(ctx context.Context, method string) {
	i.signatures.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

func (i *instruments) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// end closes span, marking it failed when err is non-nil.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(workflow.CodeOf(err)))
	}
	span.End()
}
