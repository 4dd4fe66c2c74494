package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tradecore/internal/ports"
)

var (
	_ ports.Logger = (*StdLogger)(nil)
	_ ports.Logger = (*ZapLogger)(nil)
	_ ports.Logger = NopLogger{}
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" warn ", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestStdLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelWarn)
	ctx := context.Background()

	l.Debug(ctx, "debug message")
	l.Info(ctx, "info message")
	l.Warn(ctx, "warn message")
	l.Error(ctx, errors.New("boom"), "error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "[WARN] warn message")
	assert.Contains(t, out, "[ERROR] error message | error: boom")
}

func TestStdLogger_SortsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelDebug)

	l.Info(context.Background(), "Backtest finished", map[string]interface{}{
		"trades": 3,
		"botId":  "bot-1",
		"netPnl": 12.5,
	}, map[string]interface{}{"trades": 4})

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasSuffix(line, "[INFO] Backtest finished | botId=bot-1 netPnl=12.5 trades=4"), line)
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))
	ctx := context.Background()

	l.Debug(ctx, "bar evaluated", map[string]interface{}{"index": 7})
	l.Warn(ctx, "plan warning")
	l.Error(ctx, errors.New("boom"), "run failed", map[string]interface{}{"botId": "bot-1"})

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(7), entries[0].ContextMap()["index"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)

	assert.Equal(t, "run failed", entries[2].Message)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
	assert.Equal(t, "bot-1", entries[2].ContextMap()["botId"])
}

func TestZapLevelMapping(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, zapLevel(LevelDebug))
	assert.Equal(t, zapcore.InfoLevel, zapLevel(LevelInfo))
	assert.Equal(t, zapcore.WarnLevel, zapLevel(LevelWarn))
	assert.Equal(t, zapcore.ErrorLevel, zapLevel(LevelError))
}

func TestNew(t *testing.T) {
	l, flush, err := New(FormatText, LevelInfo)
	require.NoError(t, err)
	assert.IsType(t, &StdLogger{}, l)
	assert.NoError(t, flush())

	l, _, err = New(FormatJSON, LevelDebug)
	require.NoError(t, err)
	assert.IsType(t, &ZapLogger{}, l)

	_, _, err = New("xml", LevelInfo)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
