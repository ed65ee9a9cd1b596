// Package metrics exposes Prometheus collectors for index and fetch runs.
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

// Fetch outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeThrottled = "throttled"
	OutcomeHTTPError = "http_error"
	OutcomeError     = "error"
)

var (
	fetchTotal                 *prometheus.CounterVec
	fetchBytesTotal            prometheus.Counter
	fetchDurationSeconds       prometheus.Histogram
	uploadsTotal               *prometheus.CounterVec
	indexPagesTotal            *prometheus.CounterVec
	indexRecordsTotal          *prometheus.CounterVec
	indexPacingDelaySeconds    *prometheus.HistogramVec
	ddosLevel                  prometheus.Gauge
	rateLimit                  prometheus.Gauge
	inFlight                   prometheus.Gauge
	coolOffsTotal              *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_fetch_total",
				Help: "Snapshot downloads, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wayback_fetch_bytes_total",
				Help: "Total bytes of snapshot bodies downloaded.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wayback_fetch_duration_seconds",
				Help:    "Histogram of snapshot download latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_uploads_total",
				Help: "Sink uploads, labeled by result.",
			},
			[]string{"result"},
		)

		indexPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_index_pages_total",
				Help: "Index pages requested, labeled by result.",
			},
			[]string{"result"},
		)

		indexRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_index_records_total",
				Help: "New index records merged, labeled by domain.",
			},
			[]string{"domain"},
		)

		indexPacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wayback_index_pacing_delay_seconds",
				Help:    "Histogram of index request pacing waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		ddosLevel = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wayback_ddos_level",
				Help: "Current throttling escalation level.",
			},
		)

		rateLimit = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wayback_rate_limit",
				Help: "Current admission limit for in-flight downloads.",
			},
		)

		inFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wayback_in_flight",
				Help: "Downloads currently admitted by the gate.",
			},
		)

		coolOffsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_cool_offs_total",
				Help: "Cool-off windows armed, labeled by kind.",
			},
			[]string{"kind"},
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

// ObserveFetch records one completed download.
func ObserveFetch(outcome string, bytesFetched int, duration time.Duration) {
	Init()
	fetchTotal.WithLabelValues(outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
	if duration > 0 {
		fetchDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveUpload counts a sink upload; result is "ok" or "error".
func ObserveUpload(result string) {
	Init()
	uploadsTotal.WithLabelValues(result).Inc()
}

// ObserveIndexPage counts an index page request.
func ObserveIndexPage(result string) {
	Init()
	indexPagesTotal.WithLabelValues(result).Inc()
}

// ObserveIndexRecords adds newly merged records for domain.
func ObserveIndexRecords(domain string, added int) {
	Init()
	if added > 0 {
		indexRecordsTotal.WithLabelValues(SanitizeSite(domain)).Add(float64(added))
	}
}

// ObserveIndexPacing records the duration of an index pacing wait.
func ObserveIndexPacing(host string, duration time.Duration) {
	Init()
	indexPacingDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// SetRateState publishes the gate and escalation gauges.
func SetRateState(limit, admitted, level int) {
	Init()
	rateLimit.Set(float64(limit))
	inFlight.Set(float64(admitted))
	ddosLevel.Set(float64(level))
}

// ObserveCoolOff counts a cool-off window of the given kind.
func ObserveCoolOff(kind string) {
	Init()
	coolOffsTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
