// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerProductsTotal          *prometheus.CounterVec
	crawlerExtractionsTotal       *prometheus.CounterVec
	crawlerRenderDurationSeconds  *prometheus.HistogramVec
	crawlerFrontierVisited        prometheus.Gauge
	crawlerFrontierPending        prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	llmRequestsTotal              *prometheus.CounterVec
	llmRequestDurationSeconds     prometheus.Histogram
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages handled, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of rendered bytes, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerProductsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_products_total",
				Help: "Total number of products persisted, labeled by site and extraction stage.",
			},
			[]string{"site", "stage"},
		)

		crawlerExtractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_extractions_total",
				Help: "Extraction stage attempts, labeled by stage and result.",
			},
			[]string{"stage", "result"},
		)

		crawlerRenderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_render_duration_seconds",
				Help:    "Histogram of page render latencies, labeled by render mode.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"mode"},
		)

		crawlerFrontierVisited = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_frontier_visited",
				Help: "Number of URLs marked visited in the current run.",
			},
		)

		crawlerFrontierPending = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_frontier_pending",
				Help: "Number of URLs waiting to be processed in the current run.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		llmRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_llm_requests_total",
				Help: "Structured extraction requests sent to the language model, labeled by status.",
			},
			[]string{"status"},
		)

		llmRequestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_llm_request_duration_seconds",
				Help:    "Histogram of language model request latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 60},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage counts a handled page. outcome is one of rendered, skipped or failed.
func ObservePage(site, outcome string, bytesRendered int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesRendered > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesRendered))
	}
}

// ObserveProduct counts a persisted product.
func ObserveProduct(site, stage string) {
	Init()
	if stage == "" {
		stage = "unknown"
	}
	crawlerProductsTotal.WithLabelValues(SanitizeSite(site), stage).Inc()
}

// ObserveExtraction records the result (hit, miss or error) of one extraction stage.
func ObserveExtraction(stage, result string) {
	Init()
	crawlerExtractionsTotal.WithLabelValues(stage, result).Inc()
}

// ObserveRender records how long a render took.
func ObserveRender(mode string, duration time.Duration) {
	Init()
	crawlerRenderDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// SetFrontier publishes the current frontier sizes.
func SetFrontier(visited, pending int) {
	Init()
	crawlerFrontierVisited.Set(float64(visited))
	crawlerFrontierPending.Set(float64(pending))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveLLMRequest records a language model call.
func ObserveLLMRequest(status string, duration time.Duration) {
	Init()
	llmRequestsTotal.WithLabelValues(status).Inc()
	llmRequestDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
