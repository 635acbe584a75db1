package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// HealthStatus describes whether export is working.
type HealthStatus struct {
	Healthy  bool
	Degraded bool
	Reason   string
}

// Telemetry holds the process's trace, metric and log providers.
type Telemetry struct {
	cfg *Config

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
	lp *sdklog.LoggerProvider

	health       atomic.Pointer[HealthStatus]
	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds providers from cfg and installs the trace and metric providers
// globally. An invalid configuration is an error; an exporter that cannot be
// created is not, and leaves the instance degraded.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{cfg: cfg}
	t.setHealth(HealthStatus{Healthy: true})
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	spanExp, err := newSpanExporter(ctx, cfg)
	if err != nil {
		t.setHealth(HealthStatus{Degraded: true, Reason: err.Error()})
		return t, nil
	}
	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(t.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Traces still flow when the other signals cannot be exported.
	var errs []error
	if cfg.Metrics.Enabled {
		if metricExp, err := newMetricExporter(ctx, cfg); err != nil {
			errs = append(errs, err)
		} else {
			t.mp = sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
					sdkmetric.WithInterval(cfg.Metrics.ExportInterval.Duration()))),
				sdkmetric.WithResource(res),
			)
			otel.SetMeterProvider(t.mp)
		}
	}
	if cfg.Logs.Enabled {
		if logExp, err := newLogExporter(ctx, cfg); err != nil {
			errs = append(errs, err)
		} else {
			t.lp = sdklog.NewLoggerProvider(
				sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
				sdklog.WithResource(res),
			)
		}
	}
	if err := errors.Join(errs...); err != nil {
		t.setHealth(HealthStatus{Healthy: true, Degraded: true, Reason: err.Error()})
	}
	return t, nil
}

func (t *Telemetry) setHealth(h HealthStatus) {
	t.health.Store(&h)
}

// Health returns the current export status.
func (t *Telemetry) Health() HealthStatus {
	if h := t.health.Load(); h != nil {
		return *h
	}
	return HealthStatus{}
}

// Meter returns a named meter, falling back to the global provider when
// metric export is off.
func (t *Telemetry) Meter(name string) metric.Meter {
	if t.mp == nil {
		return otel.Meter(name)
	}
	return t.mp.Meter(name)
}

// LoggerProvider returns the provider for the logging bridge, or nil when
// log export is off.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t.lp == nil {
		return nil
	}
	return t.lp
}

// Shutdown flushes and stops the providers, bounded by shutdown_timeout.
// Only the first call does any work.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, t.cfg.ShutdownTimeout.Duration())
		defer cancel()

		var errs []error
		if t.tp != nil {
			if err := t.tp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown traces: %w", err))
			}
		}
		if t.mp != nil {
			if err := t.mp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
			}
		}
		if t.lp != nil {
			if err := t.lp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown logs: %w", err))
			}
		}
		t.shutdownErr = errors.Join(errs...)
	})
	return t.shutdownErr
}
