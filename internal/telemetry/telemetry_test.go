package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	gateerrors "github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

func attrs(kvs []attribute.KeyValue) map[string]string {
	out := map[string]string{}
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestStageSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { _, _ = InitProvider(context.Background(), DefaultConfig()) })

	ctx, run := StartRunSpan(context.Background(), "run-1", "org/infra", "abc")
	_, ok := StartStageSpan(ctx, "lint", attribute.Int("violations", 2))
	RecordSuccess(ok)
	ok.End()
	_, bad := StartStageSpan(ctx, "drift")
	RecordError(bad, gateerrors.New(gateerrors.ErrCodeDriftCredential, gateerrors.KindUpstreamTransient, "no credentials"))
	RecordError(bad, nil)
	bad.End()
	run.End()

	spans := rec.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "stage.lint", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "2", attrs(spans[0].Attributes())["violations"])
	assert.Equal(t, spans[2].SpanContext().TraceID(), spans[0].SpanContext().TraceID())

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	a := attrs(spans[1].Attributes())
	assert.Equal(t, "upstream_transient", a["error.kind"])
	assert.Equal(t, "DRIFT-004", a["error.code"])
	assert.Equal(t, "true", a["error.retryable"])

	assert.Equal(t, "iamgate.run", spans[2].Name())
	assert.Equal(t, "run-1", attrs(spans[2].Attributes())["run_id"])
}

func TestInitProvider(t *testing.T) {
	ctx := context.Background()

	shutdown, err := InitProvider(ctx, DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))

	var buf bytes.Buffer
	StdoutWriter = &buf
	cfg := DefaultConfig()
	cfg.Exporter = ExporterStdout
	shutdown, err = InitProvider(ctx, cfg)
	require.NoError(t, err)
	_, span := StartStageSpan(ctx, "summarize")
	span.End()
	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "stage.summarize")

	cfg.Exporter = "zipkin"
	_, err = InitProvider(ctx, cfg)
	assert.Error(t, err)

	_, _ = InitProvider(ctx, DefaultConfig())
}
