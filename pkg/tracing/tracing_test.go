package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "telemed-qualityd", cfg.ServiceName)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.JaegerURL)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.operation")
	require.NotNil(t, span)
	AddSpanAttributes(ctx, attribute.String("test.key", "test.value"))
	RecordError(ctx, errors.New("boom"))
	span.End()
}

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestTraceAdaptationRecordsAttributes(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := TraceAdaptation(context.Background(), "session-1", "max", "low")
	AddSpanAttributes(ctx, ScoreKey.Int(42))
	RecordError(ctx, errors.New("apply failed"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "quality.adapt", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "session-1", attrs[SessionIDKey].AsString())
	assert.Equal(t, "max", attrs[LevelFromKey].AsString())
	assert.Equal(t, "low", attrs[LevelToKey].AsString())
	assert.Equal(t, int64(42), attrs[ScoreKey].AsInt64())
}

func TestSpanHelpers(t *testing.T) {
	recorder := installRecorder(t)

	_, span := TraceHTTPRequest(context.Background(), "GET", "/api/v1/sessions")
	span.End()
	_, span = TraceWebSocketMessage(context.Background(), "assessment", "session-1")
	span.End()
	_, span = TraceRepositoryOperation(context.Background(), "save", "redis")
	span.End()

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"http.GET", "websocket.assessment", "repository.save"}, names)
}
