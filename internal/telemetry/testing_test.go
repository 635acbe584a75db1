package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	tt.Install()

	_, span := otel.Tracer("docindex.test").Start(context.Background(), "collections.Create")
	span.SetAttributes(attribute.String("collection", "crewai-docs-0192"), attribute.Int("points", 3))
	span.End()

	assert.Len(t, tt.Spans(), 1)
	tt.AssertSpanExists(t, "collections.Create")
	tt.AssertSpanAttribute(t, "collections.Create", "collection", "crewai-docs-0192")
	tt.AssertSpanAttribute(t, "collections.Create", "points", "3")

	rec := &recordingTB{TB: t}
	tt.AssertSpanExists(rec, "collections.Delete")
	assert.True(t, rec.failed)

	rec = &recordingTB{TB: t}
	tt.AssertSpanAttribute(rec, "collections.Create", "collection", "other")
	assert.True(t, rec.failed)

	rec = &recordingTB{TB: t}
	tt.AssertSpanAttribute(rec, "collections.Create", "missing", "x")
	assert.True(t, rec.failed)
}

func TestTestTelemetry_Reinstall(t *testing.T) {
	first := NewTestTelemetry()
	first.Install()
	tracer := otel.Tracer("docindex.test")

	second := NewTestTelemetry()
	second.Install()
	_, span := tracer.Start(context.Background(), "pipeline.Run")
	span.End()

	assert.Empty(t, first.Spans())
	second.AssertSpanExists(t, "pipeline.Run")
}

type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(string, ...any) { r.failed = true }
