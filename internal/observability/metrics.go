package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthlens_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthlens_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthlens_uploads_total",
			Help: "Total number of dataset uploads by format.",
		},
		[]string{"format"},
	)
	uploadRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "healthlens_upload_rows_total",
			Help: "Total number of rows accepted across dataset uploads.",
		},
	)
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthlens_chat_turns_total",
			Help: "Total number of chat turns by outcome.",
		},
		[]string{"outcome"},
	)
	translationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthlens_translation_latency_ms",
			Help:    "Natural language to SQL translation latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000, 30000},
		},
	)
	unsafeQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "healthlens_unsafe_queries_total",
			Help: "Total number of candidate SQL statements rejected by the validator.",
		},
	)
	queryDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthlens_query_duration_ms",
			Help:    "Dataset query execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		uploadsTotal,
		uploadRowsTotal,
		chatTurnsTotal,
		translationLatencyMs,
		unsafeQueriesTotal,
		queryDurationMs,
	)
}

func ObserveUpload(format string, rows int) {
	uploadsTotal.WithLabelValues(format).Inc()
	if rows > 0 {
		uploadRowsTotal.Add(float64(rows))
	}
}

func ObserveChatTurn(outcome string) {
	chatTurnsTotal.WithLabelValues(outcome).Inc()
}

func ObserveTranslation(elapsed time.Duration) {
	translationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementUnsafeQuery() {
	unsafeQueriesTotal.Inc()
}

func ObserveQueryDuration(elapsed time.Duration) {
	queryDurationMs.Observe(float64(elapsed.Milliseconds()))
}
