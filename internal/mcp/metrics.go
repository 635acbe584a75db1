package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/collections"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/telemetry"
)

const instrumentationName = "github.com/danielfsbarreto/crewai-expert/internal/mcp"

// toolMetrics instruments tool calls.
type toolMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newToolMetrics(meter metric.Meter, logger *zap.Logger) *toolMetrics {
	in := telemetry.NewInstruments(meter, instrumentationName)
	m := &toolMetrics{
		calls: in.Counter("docindex.mcp.tool.invocations_total",
			"MCP tool calls by tool", "{invocation}"),
		failures: in.Counter("docindex.mcp.tool.errors_total",
			"Failed MCP tool calls by tool and reason", "{error}"),
		latency: in.Seconds("docindex.mcp.tool.duration_seconds",
			"MCP tool call latency by tool"),
		inFlight: in.Gauge("docindex.mcp.tool.active_requests",
			"MCP tool calls in progress by tool", "{request}"),
	}
	if err := in.Err(); err != nil {
		logger.Warn("some mcp instruments are disabled", zap.Error(err))
	}
	return m
}

// begin marks a call to tool as in flight. The returned func records its
// outcome and must be called exactly once.
func (m *toolMetrics) begin(ctx context.Context, tool string) func(error) {
	set := metric.WithAttributes(attribute.String("tool", tool))
	start := time.Now()
	m.inFlight.Add(ctx, 1, set)

	return func(err error) {
		m.inFlight.Add(ctx, -1, set)
		m.calls.Add(ctx, 1, set)
		m.latency.Record(ctx, time.Since(start).Seconds(), set)
		if err != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", categorizeError(err)),
			))
		}
	}
}

// categorizeError maps an error onto a low-cardinality reason label.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case indexerr.IsValidation(err):
		return "validation_error"
	case errors.Is(err, collections.ErrNoCurrentCollection):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, indexerr.ErrRateLimited):
		return "rate_limited"
	case indexerr.IsTransport(err):
		return "transport_error"
	case indexerr.IsSchema(err):
		return "schema_error"
	default:
		return "internal_error"
	}
}
