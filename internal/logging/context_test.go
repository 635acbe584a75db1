package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func TestRunIDAndStage(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunIDFromContext(ctx))
	assert.Empty(t, StageFromContext(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithStage(ctx, "embedding")
	assert.Equal(t, "run-1", RunIDFromContext(ctx))
	assert.Equal(t, "embedding", StageFromContext(ctx))

	// Empty values leave the existing tags alone.
	assert.Equal(t, "run-1", RunIDFromContext(WithRunID(ctx, "")))
	assert.Equal(t, "embedding", StageFromContext(WithStage(ctx, "")))
}

func TestContextFields(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	spanCtx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	tests := []struct {
		name string
		ctx  context.Context
		want []string
	}{
		{name: "empty", ctx: context.Background(), want: nil},
		{name: "run only", ctx: WithRunID(context.Background(), "r"), want: []string{"run.id"}},
		{name: "run and stage", ctx: WithStage(WithRunID(context.Background(), "r"), "publishing"), want: []string{"run.id", "pipeline.stage"}},
		{name: "span", ctx: spanCtx, want: []string{"trace_id", "span_id"}},
		{name: "span and run", ctx: WithRunID(spanCtx, "r"), want: []string{"trace_id", "span_id", "run.id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var keys []string
			for _, f := range ContextFields(tt.ctx) {
				keys = append(keys, f.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestContextFields_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is tolerated by the logger.
	assert.Empty(t, ContextFields(nil))
	Nop().Info(nil, "tolerated", zap.Bool("ok", true)) //nolint:staticcheck
}
