package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/testutils"
)

func TestZapSink_Emit(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSinkFromLogger(zap.New(core))

	sink.Emit(context.Background(), domain.Event{
		Name:      domain.EventJudgeRetry,
		Level:     domain.LevelWarn,
		Message:   "judge retrying",
		Fields:    map[string]any{"role": "skeptic", "attempt": 2},
		Timestamp: testutils.FixedTime,
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "judge retrying", e.Message)
	assert.Equal(t, zapcore.WarnLevel, e.Level)
	assert.Equal(t, testutils.FixedTime, e.Time)
	assert.Equal(t, map[string]any{
		"event":   domain.EventJudgeRetry,
		"role":    "skeptic",
		"attempt": int64(2),
	}, e.ContextMap())
}

func TestZapSink_Levels(t *testing.T) {
	tests := []struct {
		in   domain.EventLevel
		want zapcore.Level
	}{
		{domain.LevelDebug, zapcore.DebugLevel},
		{domain.LevelInfo, zapcore.InfoLevel},
		{domain.LevelWarn, zapcore.WarnLevel},
		{domain.LevelError, zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, zapLevel(tt.in))
		})
	}
}

func TestZapSink_FiltersBelowLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSinkFromLogger(zap.New(core))

	sink.Emit(context.Background(), domain.NewEvent("noise", domain.LevelDebug, "dropped", nil))
	sink.Emit(context.Background(), domain.NewEvent(domain.EventPanelCompleted, domain.LevelInfo, "kept", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestNewZapSink_JSON(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewZapSink(LoggerConfig{Level: "debug", Format: FormatJSON, Output: &buf})
	require.NoError(t, err)

	sink.Emit(context.Background(), domain.NewEvent(domain.EventScoreAggregated, domain.LevelInfo,
		"document scored", map[string]any{"overall_score": 7.5}))
	require.NoError(t, sink.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "document scored", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, domain.EventScoreAggregated, line["event"])
	assert.Equal(t, 7.5, line["overall_score"])
}

func TestNewLogger_Validation(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LoggerConfig{Format: "xml"})
	assert.Error(t, err)

	l, err := NewLogger(LoggerConfig{Format: FormatConsole, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewZapSinkFromLogger_Nil(t *testing.T) {
	sink := NewZapSinkFromLogger(nil)
	assert.NotPanics(t, func() {
		sink.Emit(context.Background(), domain.NewEvent("x", domain.LevelError, "y", nil))
	})
}
