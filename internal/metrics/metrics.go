package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxarchive_queries_total",
			Help: "Archive queries by operation and the path that answered them",
		},
		[]string{"operation", "path"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxarchive_fallbacks_total",
			Help: "Queries that fell back from the cache to raw export files",
		},
		[]string{"operation", "reason"},
	)

	QueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wxarchive_query_latency_seconds",
			Help:    "Archive query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheMaterializations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxarchive_cache_materializations_total",
			Help: "Month exports loaded into the cache",
		},
		[]string{"kind"},
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxarchive_rows_dropped_total",
			Help: "Export rows dropped while parsing or aggregating",
		},
		[]string{"reason"},
	)

	FileErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wxarchive_file_errors_total",
			Help: "Raw export files skipped because they could not be read",
		},
	)

	QualityFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxarchive_quality_flags_total",
			Help: "Plausibility flags raised on daily rows",
		},
		[]string{"flag"},
	)

	FilesSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxarchive_files_synced_total",
			Help: "Export files downloaded by the FTP mirror",
		},
		[]string{"status"},
	)
)
