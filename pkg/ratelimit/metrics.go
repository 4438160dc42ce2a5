package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limiting.
var (
	throttleWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biofetch_throttle_wait_seconds",
		Help:    "Time spent waiting for a limiter by limiter kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"limiter"})

	throttleRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_throttle_rejections_total",
		Help: "Total number of strict-mode rejections by limiter kind",
	}, []string{"limiter"})

	downloadAdvisoriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biofetch_download_advisories_total",
		Help: "Total number of repeat-download advisories by level",
	}, []string{"level"})
)
