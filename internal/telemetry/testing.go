package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// The global tracer provider only delegates package-level tracers once, so
// tests share one provider that forwards to whichever recorder is installed.
var (
	sharedOnce     sync.Once
	sharedProvider *sdktrace.TracerProvider
	activeSpans    atomic.Pointer[tracetest.SpanRecorder]
)

type forwarder struct{}

func (forwarder) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if r := activeSpans.Load(); r != nil {
		r.OnStart(ctx, s)
	}
}

func (forwarder) OnEnd(s sdktrace.ReadOnlySpan) {
	if r := activeSpans.Load(); r != nil {
		r.OnEnd(s)
	}
}

func (forwarder) Shutdown(context.Context) error   { return nil }
func (forwarder) ForceFlush(context.Context) error { return nil }

// TestTelemetry records spans in memory.
type TestTelemetry struct {
	recorder *tracetest.SpanRecorder
}

// NewTestTelemetry returns a recorder that sees nothing until Install.
func NewTestTelemetry() *TestTelemetry {
	return &TestTelemetry{recorder: tracetest.NewSpanRecorder()}
}

// Install routes spans from the global tracer provider to this recorder.
func (tt *TestTelemetry) Install() {
	sharedOnce.Do(func() {
		sharedProvider = sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithSpanProcessor(forwarder{}),
		)
	})
	activeSpans.Store(tt.recorder)
	otel.SetTracerProvider(sharedProvider)
}

// Spans returns the ended spans.
func (tt *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return tt.recorder.Ended()
}

// Span returns the first ended span with name, or nil.
func (tt *TestTelemetry) Span(name string) sdktrace.ReadOnlySpan {
	for _, s := range tt.recorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpanExists fails t unless a span named name has ended.
func (tt *TestTelemetry) AssertSpanExists(t testing.TB, name string) {
	t.Helper()
	if tt.Span(name) == nil {
		t.Errorf("span %q not recorded; have %v", name, tt.spanNames())
	}
}

// AssertSpanAttribute fails t unless span name carries key with value
// rendered as want.
func (tt *TestTelemetry) AssertSpanAttribute(t testing.TB, name, key, want string) {
	t.Helper()
	s := tt.Span(name)
	if s == nil {
		t.Errorf("span %q not recorded; have %v", name, tt.spanNames())
		return
	}
	for _, kv := range s.Attributes() {
		if kv.Key == attribute.Key(key) {
			if got := kv.Value.Emit(); got != want {
				t.Errorf("span %q attribute %q = %q, want %q", name, key, got, want)
			}
			return
		}
	}
	t.Errorf("span %q has no attribute %q", name, key)
}

func (tt *TestTelemetry) spanNames() []string {
	spans := tt.recorder.Ended()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	return names
}
