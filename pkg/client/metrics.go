package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_requests_total",
		Help: "Total upstream requests by host and status",
	}, []string{"host", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biofetch_request_duration_seconds",
		Help:    "Upstream request duration in seconds by host",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"host"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_errors_total",
		Help: "Total failed attempts by error class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biofetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_pages_fetched_total",
		Help: "Total pages fetched by pagination style",
	}, []string{"style"})

	itemsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_items_fetched_total",
		Help: "Total items returned by FetchAll by pagination style",
	}, []string{"style"})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_downloads_total",
		Help: "Total downloads by outcome",
	}, []string{"outcome"})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biofetch_download_bytes_total",
		Help: "Total bytes written by downloads",
	})
)
