// Package metrics provides the Prometheus registry pointer and a snapshot
// helper for the biofetch metrics. All metrics are defined in their
// respective packages (client, cache, ratelimit) to maintain modularity and
// avoid circular dependencies.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Prefix is shared by every metric name.
const Prefix = "biofetch_"

// Registry is the default Prometheus registry used by the fetcher.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Sample is one metric series reduced to a single value. Histograms report
// their sample count and sum as two samples suffixed _count and _sum.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Snapshot gathers the current biofetch series from gatherer, sorted by name
// and labels. Series that were never touched are omitted. A nil gatherer
// reads the default registry.
func Snapshot(gatherer prometheus.Gatherer) ([]Sample, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	families, err := gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var samples []Sample
	for _, family := range families {
		name := family.GetName()
		if !strings.HasPrefix(name, Prefix) {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := formatLabels(m.GetLabel())
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				if v := m.GetCounter().GetValue(); v != 0 {
					samples = append(samples, Sample{Name: name, Labels: labels, Value: v})
				}
			case dto.MetricType_GAUGE:
				samples = append(samples, Sample{Name: name, Labels: labels, Value: m.GetGauge().GetValue()})
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				if h.GetSampleCount() == 0 {
					continue
				}
				samples = append(samples,
					Sample{Name: name + "_count", Labels: labels, Value: float64(h.GetSampleCount())},
					Sample{Name: name + "_sum", Labels: labels, Value: h.GetSampleSum()},
				)
			}
		}
	}

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return samples[i].Labels < samples[j].Labels
	})
	return samples, nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	return strings.Join(parts, ",")
}

// Metrics Documentation
//
// Throttle Metrics (pkg/ratelimit):
//   - biofetch_throttle_wait_seconds{limiter} (Histogram): Time spent waiting on the request throttle or download window
//   - biofetch_throttle_rejections_total{limiter} (Counter): Strict-mode rejections
//   - biofetch_download_advisories_total{level} (Counter): Repeat-download advisories by level
//
// Cache Metrics (pkg/cache):
//   - biofetch_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - biofetch_cache_misses_total (Counter): Cache misses
//   - biofetch_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - biofetch_304_responses_total (Counter): 304 Not Modified responses
//   - biofetch_conditional_requests_total (Counter): Conditional requests sent
//   - biofetch_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - biofetch_requests_total{host, status} (Counter): Requests by upstream host and HTTP status
//   - biofetch_request_duration_seconds{host} (Histogram): Request duration by upstream host
//   - biofetch_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - biofetch_pages_fetched_total{style} (Counter): Pages by pagination style
//   - biofetch_items_fetched_total{style} (Counter): Items accumulated by FetchAll
//   - biofetch_downloads_total{outcome} (Counter): Downloads by outcome (ok, failed, rate_limited)
//   - biofetch_download_bytes_total (Counter): Bytes streamed by Download
//
// Retry Metrics (pkg/client):
//   - biofetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - biofetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - biofetch_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(biofetch_cache_hits_total[5m])) /
//   (sum(rate(biofetch_cache_hits_total[5m])) + sum(rate(biofetch_cache_misses_total[5m])))
//
//   # 429 Rate per upstream
//   sum by (host) (rate(biofetch_requests_total{status="429"}[5m]))
//
//   # Request Error Rate
//   rate(biofetch_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(biofetch_request_duration_seconds_bucket[5m]))
//
//   # 304 Response Rate
//   rate(biofetch_304_responses_total[5m]) / rate(biofetch_requests_total[5m])
