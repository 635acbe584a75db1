package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/collections"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

func sums(t *testing.T, reader *sdkmetric.ManualReader) map[string][]metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string][]metricdata.DataPoint[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = s.DataPoints
			}
		}
	}
	return out
}

func TestToolMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newToolMetrics(mp.Meter(instrumentationName), zap.NewNop())
	ctx := context.Background()

	done := m.begin(ctx, toolSearch)
	inFlight := sums(t, reader)["docindex.mcp.tool.active_requests"]
	require.Len(t, inFlight, 1)
	assert.Equal(t, int64(1), inFlight[0].Value)
	done(nil)

	m.begin(ctx, toolSearch)(indexerr.NewValidationError("prompt", "must not be empty"))
	m.begin(ctx, toolCurrentCollection)(collections.ErrNoCurrentCollection)

	data := sums(t, reader)

	calls := map[string]int64{}
	for _, dp := range data["docindex.mcp.tool.invocations_total"] {
		tool, _ := dp.Attributes.Value("tool")
		calls[tool.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{toolSearch: 2, toolCurrentCollection: 1}, calls)

	reasons := map[string]int64{}
	for _, dp := range data["docindex.mcp.tool.errors_total"] {
		reason, _ := dp.Attributes.Value("reason")
		reasons[reason.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"validation_error": 1, "not_found": 1}, reasons)

	for _, dp := range data["docindex.mcp.tool.active_requests"] {
		assert.Zero(t, dp.Value)
	}
}

func TestToolMetrics_LatencyRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newToolMetrics(mp.Meter(instrumentationName), zap.NewNop())

	done := m.begin(context.Background(), toolSearch)
	time.Sleep(5 * time.Millisecond)
	done(nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "docindex.mcp.tool.duration_seconds" {
				continue
			}
			hist := md.Data.(metricdata.Histogram[float64])
			require.Len(t, hist.DataPoints, 1)
			assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
			assert.GreaterOrEqual(t, hist.DataPoints[0].Sum, 0.005)
			return
		}
	}
	t.Fatal("duration histogram not recorded")
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", indexerr.NewValidationError("prompt", "must not be empty"), "validation_error"},
		{"no collection", fmt.Errorf("resolving collection: %w", collections.ErrNoCurrentCollection), "not_found"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), "timeout"},
		{"rate limited", indexerr.NewTransportError("embed_query", "m", 429, indexerr.ErrRateLimited), "rate_limited"},
		{"transport", indexerr.NewTransportError("query", "c", 503, errors.New("unavailable")), "transport_error"},
		{"schema", indexerr.NewSchemaError("query", "c", errors.New("dimension mismatch")), "schema_error"},
		{"other", errors.New("something went wrong"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeError(tt.err))
		})
	}
}
