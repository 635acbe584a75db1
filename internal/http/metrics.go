package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/telemetry"
)

const httpInstrumentationName = "github.com/danielfsbarreto/crewai-expert/internal/http"

// requestMetrics instruments the REST API.
type requestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	bytes    metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

// newRequestMetrics registers the API instruments on meter, or the global
// meter when nil.
func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *requestMetrics {
	in := telemetry.NewInstruments(meter, httpInstrumentationName)
	m := &requestMetrics{
		requests: in.Counter("docindex.http.requests_total",
			"API requests by method, route and status", "{request}"),
		latency: in.Seconds("docindex.http.request_duration_seconds",
			"API request latency by method, route and status"),
		bytes: in.Sizes("docindex.http.response_size_bytes",
			"API response body size by method, route and status", "By",
			256, 1024, 4096, 16384, 65536, 262144),
		inFlight: in.Gauge("docindex.http.active_requests",
			"API requests currently being served", "{request}"),
	}
	if err := in.Err(); err != nil {
		logger.Warn("some http instruments are disabled", zap.Error(err))
	}
	return m
}

// middleware records one sample per request. The route label is echo's
// route template, so path parameters never reach it.
func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)

			err := next(c)
			if err != nil {
				// Resolve the status the error handler is about to write.
				c.Error(err)
				err = nil
			}

			set := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			m.requests.Add(ctx, 1, set)
			m.latency.Record(ctx, time.Since(start).Seconds(), set)
			m.bytes.Record(ctx, c.Response().Size, set)
			return err
		}
	}
}

// routeLabel folds requests that matched no route into one label.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
