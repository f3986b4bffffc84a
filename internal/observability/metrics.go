// Package observability holds the Prometheus registry and the collectors
// shared by the engine, the cache and the HTTP and gRPC surfaces.
package observability

import (
	"time"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "worlddb"

var (
	Registry = prometheus.NewRegistry()

	// EngineOps counts engine operations by access surface
	// (record, keyvalue, sql, tables) and outcome.
	EngineOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by access surface and outcome.",
		},
		[]string{"surface", "outcome"},
	)

	// EngineLatency observes engine operation latency.
	EngineLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_seconds",
			Help:      "Engine operation latency by access surface.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"surface"},
	)

	// HTTPRequests counts HTTP requests by route and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	// HTTPLatency observes HTTP request latency by route.
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// CacheLookups counts result cache lookups by outcome (hit, miss, error).
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	// DatasetStatements counts statements executed by the dataset loader.
	DatasetStatements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "statements_total",
			Help:      "Statements executed while loading datasets.",
		},
	)

	// StorageOps counts object store calls by store, operation and
	// outcome (ok, not_found, error).
	StorageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Object store operations by store, operation and outcome.",
		},
		[]string{"store", "op", "outcome"},
	)

	GRPCMetrics = grpcprometheus.NewServerMetrics(
		func(c *prometheus.CounterOpts) {
			c.Namespace = namespace
		},
	)
)

func init() {
	Registry.MustRegister(
		EngineOps,
		EngineLatency,
		HTTPRequests,
		HTTPLatency,
		CacheLookups,
		DatasetStatements,
		StorageOps,
		GRPCMetrics,
	)
	GRPCMetrics.EnableHandlingTimeHistogram(
		func(h *prometheus.HistogramOpts) {
			h.Namespace = namespace
		},
	)
}

// ObserveEngine records one engine operation.
func ObserveEngine(surface string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	EngineOps.WithLabelValues(surface, outcome).Inc()
	EngineLatency.WithLabelValues(surface).Observe(time.Since(start).Seconds())
}
