package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

const tracerName = "github.com/deepak-kumar-biswal/pr-approver-agent/pipeline"

// StartRunSpan opens the root span of a pipeline run.
//
//	ctx, span := telemetry.StartRunSpan(ctx, runID, repo, sha)
//	defer span.End()
func StartRunSpan(ctx context.Context, runID, repo, sha string) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer(tracerName).Start(ctx, "iamgate.run")
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("repo", repo),
		attribute.String("sha", sha),
	)
	return ctx, span
}

// StartStageSpan opens a child span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := GetTracerProvider().Tracer(tracerName).Start(ctx, "stage."+stage)
	span.SetAttributes(attribute.String("stage", stage))
	span.SetAttributes(attrs...)
	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records err on span with its gate error kind and code.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.String("error.kind", string(errors.KindOf(err))),
		attribute.String("error.code", string(errors.CodeOf(err))),
		attribute.Bool("error.retryable", errors.IsRetryable(err)),
	)
}
