// Package metrics exposes Prometheus instrumentation for the catalog core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolsClustered counts pools successfully resolved to a work.
	PoolsClustered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_pools_clustered_total",
		Help: "License pools successfully resolved to a work",
	})

	// PoolsUnclustered counts resolutions that left the pool unattached.
	PoolsUnclustered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_pools_unclustered_total",
		Help: "Resolutions that left the pool without a work",
	})

	// PoolsEvicted counts pools pushed out of a work to keep invariants.
	PoolsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_pools_evicted_total",
		Help: "Pools evicted from works during invariant enforcement",
	})

	// WorksCreated counts newly created works.
	WorksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_works_created_total",
		Help: "Works created on demand by clustering",
	})

	// WorksMerged counts work merges.
	WorksMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_works_merged_total",
		Help: "Duplicate works absorbed by a survivor",
	})

	// RecomputeRuns counts presentation pipeline runs by outcome.
	RecomputeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_recompute_runs_total",
		Help: "Presentation recompute runs by outcome",
	}, []string{"changed"})

	// ExternalCallFailures counts failed classifier/evaluator calls.
	ExternalCallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_external_call_failures_total",
		Help: "Failed calls to external classification or evaluation services",
	}, []string{"service"})

	// RecordsImported counts imported records by outcome.
	RecordsImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_records_imported_total",
		Help: "Imported catalog records by outcome",
	}, []string{"status"})
)
