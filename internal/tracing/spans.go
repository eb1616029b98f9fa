package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan opens a child span under ctx's current span (or a new root if
// none), returning the span-bearing context alongside the span itself so
// the caller can End it with the call's outcome. attrs are set at start
// time; EndSpan accepts further attrs only known once the call returns
// (token counts, finish reason, tool output size).
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) as the span's status, sets attrs gathered
// after the call completed, and ends the span. Mirrors the teacher's
// emitLLMSpan/emitToolSpan "Status: error iff callErr != nil" convention,
// expressed as otel span status instead of store.SpanStatus.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Attribute key names shared between the agent loop's LLM-call and
// tool-call spans, matching the fields the teacher's store.SpanData
// carried (provider, model, token counts, tool name) but as span
// attributes rather than rows in a Postgres span table.
const (
	AttrProvider      = "aria.provider"
	AttrModel         = "aria.model"
	AttrIteration     = "aria.iteration"
	AttrInputTokens   = "aria.input_tokens"
	AttrOutputTokens  = "aria.output_tokens"
	AttrFinishReason  = "aria.finish_reason"
	AttrToolName      = "aria.tool_name"
	AttrToolCallID    = "aria.tool_call_id"
	AttrSessionKey    = "aria.session_key"
	AttrToolIsError   = "aria.tool_is_error"
)
