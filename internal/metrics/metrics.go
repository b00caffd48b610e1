// Package metrics holds the Prometheus collectors for the HTTP and
// ingestion planes, exposed via the /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_http_requests_total",
			Help: "Total number of HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vantage_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Ingestion metrics
	IngestRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_ingest_records_total",
			Help: "Total number of records handed to the batch writer",
		},
	)

	IngestBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_ingest_batches_total",
			Help: "Total number of batches flushed to the store",
		},
	)

	IngestBatchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_ingest_batch_retries_total",
			Help: "Total number of transient-failure batch retries",
		},
	)

	SearchQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_search_queries_total",
			Help: "Total number of search queries by technique",
		},
		[]string{"technique"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(IngestRecordsTotal)
	prometheus.MustRegister(IngestBatchesTotal)
	prometheus.MustRegister(IngestBatchRetriesTotal)
	prometheus.MustRegister(SearchQueriesTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
