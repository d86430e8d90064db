package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := New("debug", "json")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = New("warn", "console")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	_, err = New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestContextLogger_AddsContextFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "session-7")
	ctx = WithSubject(ctx, "clinician-3")
	assert.Equal(t, "req-1", RequestID(ctx))

	cl.LogRequest(ctx, "GET", "/api/v1/sessions", 200, 12)
	cl.LogError(context.Background(), errors.New("boom"), "save failed")

	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "session-7", fields["session_id"])
	assert.Equal(t, "clinician-3", fields["subject"])
	assert.Equal(t, int64(200), fields["status_code"])

	assert.Equal(t, "save failed", entries[1].Message)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
}
