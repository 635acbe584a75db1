package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newBufferLogger logs JSON into a buffer with sampling off.
func newBufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	var buf bytes.Buffer
	l, err := newLogger(cfg, nil, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return l, &buf
}

// entries decodes one JSON object per line.
func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestLogger_ContextFields(t *testing.T) {
	l, buf := newBufferLogger(t, nil)

	ctx := WithRunID(context.Background(), "0192f1c4-7a2b-7000-8000-000000000001")
	ctx = WithStage(ctx, "fetching")
	l.Info(ctx, "batch fetched", zap.Int("batch", 3))

	got := entries(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "batch fetched", got[0]["msg"])
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "0192f1c4-7a2b-7000-8000-000000000001", got[0]["run.id"])
	assert.Equal(t, "fetching", got[0]["pipeline.stage"])
	assert.Equal(t, float64(3), got[0]["batch"])
	assert.Equal(t, "docindex", got[0]["service"])
	assert.Contains(t, got[0]["caller"], "logger_test.go")
}

func TestLogger_TraceCorrelation(t *testing.T) {
	l, buf := newBufferLogger(t, nil)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	l.Warn(ctx, "slow batch")

	got := entries(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), got[0]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), got[0]["span_id"])
}

func TestLogger_Levels(t *testing.T) {
	l, buf := newBufferLogger(t, func(c *Config) { c.Level = zapcore.WarnLevel })
	ctx := context.Background()

	l.Debug(ctx, "debug")
	l.Info(ctx, "info")
	l.Warn(ctx, "warn")
	l.Error(ctx, "error")

	got := entries(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "warn", got[0]["msg"])
	assert.Equal(t, "error", got[1]["msg"])
	assert.False(t, l.Enabled(zapcore.InfoLevel))
	assert.True(t, l.Enabled(zapcore.ErrorLevel))
}

func TestLogger_WithAndNamed(t *testing.T) {
	l, buf := newBufferLogger(t, nil)

	child := l.Named("pipeline").With(zap.String("prefix", "crewai-docs"))
	child.Info(context.Background(), "child")
	l.Info(context.Background(), "parent")

	got := entries(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "pipeline", got[0]["logger"])
	assert.Equal(t, "crewai-docs", got[0]["prefix"])
	assert.NotContains(t, got[1], "prefix")
	assert.NotContains(t, got[1], "logger")
}

func TestLogger_UnderlyingReportsItsOwnCaller(t *testing.T) {
	l, buf := newBufferLogger(t, nil)
	l.Underlying().Info("direct")

	got := entries(t, buf)
	require.Len(t, got, 1)
	assert.Contains(t, got[0]["caller"], "logger_test.go")
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewLogger_OTELOnlyNeedsProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)

	l, err := NewLogger(cfg, noop.NewLoggerProvider())
	require.NoError(t, err)
	l.Info(context.Background(), "forwarded")
}

func TestNopAndFromZap(t *testing.T) {
	ctx := WithRunID(context.Background(), "r")
	Nop().Info(ctx, "dropped")
	FromZap(nil).Error(ctx, "dropped")

	z := zap.NewNop()
	assert.Same(t, z, FromZap(z).Underlying())
}

func TestIsConsoleSyncError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{syscall.EINVAL, true},
		{syscall.ENOTTY, true},
		{errors.Join(errors.New("sync /dev/stdout"), syscall.EINVAL), true},
		{syscall.EIO, false},
		{errors.New("disk full"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isConsoleSyncError(tt.err), "%v", tt.err)
	}
}
