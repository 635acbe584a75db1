package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type runIDKey struct{}
type stageKey struct{}

// WithRunID tags ctx with the indexing run. Empty IDs are ignored.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runIDKey{}).(string)
	return s
}

// WithStage tags ctx with the pipeline stage. Empty stages are ignored.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFromContext returns the stage set by WithStage, or "".
func StageFromContext(ctx context.Context) string {
	s, _ := ctx.Value(stageKey{}).(string)
	return s
}

// ContextFields extracts correlation fields from ctx: the active span and
// the run and stage tags.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 4)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if stage := StageFromContext(ctx); stage != "" {
		fields = append(fields, zap.String("pipeline.stage", stage))
	}
	return fields
}
