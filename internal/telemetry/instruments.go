package telemetry

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// LatencyBuckets are histogram bounds, in seconds, for network round trips.
// Embedding batches regularly take several seconds, hence the long tail.
var LatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Instruments creates instruments on one meter. A failed instrument is
// replaced by a no-op so recording sites never nil-check; failures are
// collected for Err.
type Instruments struct {
	meter metric.Meter
	errs  []error
}

// NewInstruments uses meter, or the global meter named scope when meter is nil.
func NewInstruments(meter metric.Meter, scope string) *Instruments {
	if meter == nil {
		meter = otel.Meter(scope)
	}
	return &Instruments{meter: meter}
}

func (in *Instruments) fail(name string, err error) {
	in.errs = append(in.errs, fmt.Errorf("%s: %w", name, err))
}

// Counter creates a monotonic int64 counter.
func (in *Instruments) Counter(name, desc, unit string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		in.fail(name, err)
		return noop.Int64Counter{}
	}
	return c
}

// Gauge creates an int64 up-down counter.
func (in *Instruments) Gauge(name, desc, unit string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		in.fail(name, err)
		return noop.Int64UpDownCounter{}
	}
	return g
}

// Seconds creates a float64 duration histogram over LatencyBuckets.
func (in *Instruments) Seconds(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(LatencyBuckets...),
	)
	if err != nil {
		in.fail(name, err)
		return noop.Float64Histogram{}
	}
	return h
}

// Sizes creates an int64 histogram with explicit bounds.
func (in *Instruments) Sizes(name, desc, unit string, bounds ...float64) metric.Int64Histogram {
	h, err := in.meter.Int64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	if err != nil {
		in.fail(name, err)
		return noop.Int64Histogram{}
	}
	return h
}

// Err joins every instrument creation failure.
func (in *Instruments) Err() error {
	return errors.Join(in.errs...)
}
