package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs.
	// Labels: outcome (done, failed)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of indexing runs by outcome",
		},
		[]string{"outcome"},
	)

	// StageDuration tracks time spent in each stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docindex",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	// Documents is the number of documents fetched by the last run.
	Documents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docindex",
			Subsystem: "pipeline",
			Name:      "documents",
			Help:      "Documents fetched by the most recent run",
		},
	)

	// Chunks is the number of chunks produced by the last run.
	Chunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docindex",
			Subsystem: "pipeline",
			Name:      "chunks",
			Help:      "Chunks produced by the most recent run",
		},
	)
)
