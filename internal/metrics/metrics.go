// Package metrics defines custom Prometheus metrics for RankStamp.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576}

// lengthBuckets cover stamp lengths from a fresh mint (33 bytes) through the
// growth seen under deeply nested insertions.
var lengthBuckets = []float64{16, 24, 32, 40, 48, 64, 96, 128, 192, 256}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankstamp_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rankstamp_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rankstamp_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rankstamp_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// List operation metrics.
var (
	// OperationsTotal counts list operations by operation name and status.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankstamp_operations_total",
			Help: "List operations by type",
		},
		[]string{"operation", "status"},
	)

	// StampsMintedTotal counts minted stamps by generator operation.
	StampsMintedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankstamp_stamps_minted_total",
			Help: "Stamps minted by generator operation",
		},
		[]string{"op"},
	)

	// StampLengthChars observes the byte length of minted stamps. Growth in
	// the upper buckets signals deeply nested insertion patterns.
	StampLengthChars = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankstamp_stamp_length_chars",
			Help:    "Byte length of minted stamps",
			Buckets: lengthBuckets,
		},
	)

	// ListsTotal is a gauge tracking total lists in the store.
	ListsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rankstamp_lists_total",
			Help: "Total lists in the store",
		},
	)

	// ItemsTotal is a gauge tracking total items across all lists.
	ItemsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rankstamp_items_total",
			Help: "Total items across all lists",
		},
	)

	// BytesReceivedTotal counts total bytes received in request bodies.
	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rankstamp_bytes_received_total",
			Help: "Total bytes received (request bodies)",
		},
	)

	// BytesSentTotal counts total bytes sent in response bodies.
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rankstamp_bytes_sent_total",
			Help: "Total bytes sent (response bodies)",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// The server calls it when metrics are enabled, so registration stays
// conditional on configuration. It is safe to call multiple times;
// subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			OperationsTotal,
			StampsMintedTotal,
			StampLengthChars,
			ListsTotal,
			ItemsTotal,
			BytesReceivedTotal,
			BytesSentTotal,
		)
		// Initialize OperationsTotal so it appears in /metrics output even
		// before any list operations have been performed.
		OperationsTotal.WithLabelValues("ListLists", "success")
	})
}

// NormalizePath maps actual request paths to normalized path templates
// suitable for use as Prometheus metric labels. This avoids high-cardinality
// labels from individual list/item IDs.
func NormalizePath(path string) string {
	// Known fixed paths.
	switch path {
	case "/health":
		return "/health"
	case "/healthz":
		return "/healthz"
	case "/readyz":
		return "/readyz"
	case "/docs", "/docs/":
		return "/docs"
	case "/metrics":
		return "/metrics"
	case "/openapi.json":
		return "/openapi.json"
	case "/", "":
		return "/"
	}

	// Starts with /docs (Stoplight Elements assets).
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}
	if strings.HasPrefix(path, "/openapi") {
		return "/openapi.json"
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "v1" && parts[1] == "lists" {
		switch {
		case len(parts) == 2:
			return "/v1/lists"
		case len(parts) == 3:
			return "/v1/lists/{list}"
		case len(parts) == 4 && parts[3] == "items":
			return "/v1/lists/{list}/items"
		case len(parts) == 4 && parts[3] == "snapshots":
			return "/v1/lists/{list}/snapshots"
		case len(parts) == 5 && parts[3] == "items":
			return "/v1/lists/{list}/items/{item}"
		case len(parts) == 6 && parts[3] == "items" && parts[5] == "move":
			return "/v1/lists/{list}/items/{item}/move"
		case len(parts) == 6 && parts[3] == "snapshots" && parts[5] == "restore":
			return "/v1/lists/{list}/snapshots/{snapshot}/restore"
		}
	}
	return "/other"
}
