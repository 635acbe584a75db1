package collections

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Deletion reasons.
const (
	reasonEmpty        = "empty"
	reasonSuperseded   = "superseded"
	reasonPruned       = "pruned"
	reasonIndexFailure = "index_failure"
	reasonAborted      = "aborted"
)

var (
	// CollectionsDeleted counts collections removed by the manager.
	// Labels: reason (empty, superseded, pruned, index_failure, aborted)
	CollectionsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "collections",
			Name:      "deleted_total",
			Help:      "Total number of collections deleted",
		},
		[]string{"reason"},
	)

	// CollectionsCreated counts collections created by the manager.
	CollectionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "collections",
			Name:      "created_total",
			Help:      "Total number of collections created",
		},
	)

	// AliasSwaps counts successful alias swaps.
	AliasSwaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "collections",
			Name:      "alias_swaps_total",
			Help:      "Total number of alias swaps performed on finalize",
		},
	)
)
