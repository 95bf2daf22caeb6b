package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors for the ingestion pipeline and the query API. Duplicate row
// suppression is deliberately observable: RowsDecoded minus RowsInserted
// minus RowsSkipped is the number of natural-key conflicts ignored.
var (
	ObjectsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_objects_processed_total",
			Help: "Source objects processed, by result",
		},
		[]string{"result"},
	)

	RowsDecodedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "etl_rows_decoded_total",
			Help: "Rows decoded from source objects",
		},
	)

	RowsInsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "etl_rows_inserted_total",
			Help: "Rows newly inserted into the snapshot store",
		},
	)

	RowsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "etl_rows_skipped_total",
			Help: "Rows skipped due to mapping errors",
		},
	)

	RowsDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "etl_rows_duplicate_total",
			Help: "Rows dropped by natural-key conflict (already stored)",
		},
	)

	FetchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "etl_fetch_retries_total",
			Help: "Transient object fetch failures that were retried",
		},
	)

	WriteRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "etl_write_retries_total",
			Help: "Transient batch write failures that were retried",
		},
	)

	BatchInsertDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "etl_batch_insert_duration_seconds",
			Help:    "Time taken to insert one batch of snapshot rows",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(
		ObjectsProcessedTotal,
		RowsDecodedTotal,
		RowsInsertedTotal,
		RowsSkippedTotal,
		RowsDuplicateTotal,
		FetchRetriesTotal,
		WriteRetriesTotal,
		BatchInsertDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
