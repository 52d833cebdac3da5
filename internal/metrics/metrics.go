// Package metrics exposes Prometheus collectors for the article crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerURLsTotal             *prometheus.CounterVec
	crawlerFetchAttemptsTotal    *prometheus.CounterVec
	crawlerFetchDurationSeconds  *prometheus.HistogramVec
	crawlerRobotsFetchesTotal    *prometheus.CounterVec
	crawlerPolitenessWaitSeconds prometheus.Histogram
	crawlerArchivedRecordsTotal  *prometheus.CounterVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_urls_total",
				Help: "Total number of URLs processed, labeled by final outcome.",
			},
			[]string{"outcome"},
		)

		crawlerFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_attempts_total",
				Help: "Total number of fetch attempts, labeled by strategy and result.",
			},
			[]string{"strategy", "result"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by strategy.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"strategy"},
		)

		crawlerRobotsFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_robots_fetches_total",
				Help: "Total number of robots.txt fetches, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerPolitenessWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_politeness_wait_seconds",
				Help:    "Histogram of time spent waiting on the per-origin gate.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		crawlerArchivedRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_archived_records_total",
				Help: "Total number of records handed to archive sinks, labeled by sink and status.",
			},
			[]string{"sink", "status"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveURL counts a URL that reached a final outcome.
func ObserveURL(outcome string) {
	Init()
	crawlerURLsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAttempt counts one fetch attempt.
func ObserveAttempt(strategy, result string) {
	Init()
	crawlerFetchAttemptsTotal.WithLabelValues(strategy, result).Inc()
}

// ObserveFetchDuration records how long a single fetch took.
func ObserveFetchDuration(strategy string, d time.Duration) {
	Init()
	crawlerFetchDurationSeconds.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveRobotsFetch counts a robots.txt fetch. status is the HTTP status code
// or "error" when no response was received.
func ObserveRobotsFetch(status string) {
	Init()
	crawlerRobotsFetchesTotal.WithLabelValues(status).Inc()
}

// ObservePolitenessWait records time spent queued behind an origin's crawl-delay.
func ObservePolitenessWait(d time.Duration) {
	Init()
	crawlerPolitenessWaitSeconds.Observe(d.Seconds())
}

// ObserveArchive counts a record handed to an archive sink.
func ObserveArchive(sink, status string) {
	Init()
	crawlerArchivedRecordsTotal.WithLabelValues(sink, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
