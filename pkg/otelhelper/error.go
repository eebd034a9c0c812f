package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed and records the error as a span event.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetExecutionError tags the failure with the run's identity, so the traces
// of a failed execution can be found by its id.
func SetExecutionError(span trace.Span, err error, executionID, workflowID string) {
	SetError(span, err,
		attribute.String(ExecutionIDKey, executionID),
		attribute.String(WorkflowIDKey, workflowID),
	)
}
