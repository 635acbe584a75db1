package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestRequestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newRequestMetrics(mp.Meter(httpInstrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.middleware())
	e.GET("/api/v1/collections/current", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"name": "crewai-docs-1"})
	})
	e.POST("/api/v1/search", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt must not be empty")
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("boom")
	})

	for _, r := range []struct{ method, target string }{
		{http.MethodGet, "/api/v1/collections/current"},
		{http.MethodGet, "/api/v1/collections/current"},
		{http.MethodPost, "/api/v1/search"},
		{http.MethodGet, "/boom"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.target, nil))
	}

	data := collect(t, reader)

	requests, ok := data["docindex.http.requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	byStatus := map[int64]int64{}
	for _, dp := range requests.DataPoints {
		status, _ := dp.Attributes.Value("status")
		byStatus[status.AsInt64()] += dp.Value
		route, _ := dp.Attributes.Value("route")
		assert.NotEmpty(t, route.AsString())
	}
	assert.Equal(t, map[int64]int64{200: 2, 400: 1, 500: 1}, byStatus)

	latency, ok := data["docindex.http.request_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var samples uint64
	for _, dp := range latency.DataPoints {
		samples += dp.Count
	}
	assert.Equal(t, uint64(4), samples)

	assert.Contains(t, data, "docindex.http.response_size_bytes")

	inFlight, ok := data["docindex.http.active_requests"].(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range inFlight.DataPoints {
		assert.Zero(t, dp.Value, "every request must be released")
	}
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/api/v1/search", routeLabel("/api/v1/search"))
}
