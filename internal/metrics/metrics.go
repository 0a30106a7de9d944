// Package metrics exposes Prometheus collectors for the scrape service.
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
	scrapeJobsTotal              *prometheus.CounterVec
	scrapeJobDurationSeconds     *prometheus.HistogramVec
	scrapeArticlesTotal          *prometheus.CounterVec
	scrapeSecondaryRequestsTotal *prometheus.CounterVec
	scrapeEmbeddingsTotal        *prometheus.CounterVec
	scrapeEmbeddingsInFlight     prometheus.Gauge
	scrapeActiveWorkers          prometheus.Gauge
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_jobs_total",
				Help: "Total number of jobs finished, labeled by job type and terminal status.",
			},
			[]string{"job_type", "status"},
		)

		scrapeJobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrape_job_duration_seconds",
				Help:    "Histogram of job handling time, labeled by job type.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"job_type"},
		)

		scrapeArticlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_articles_total",
				Help: "Article job outcomes, labeled by status (stored, trash, duplicate, failed).",
			},
			[]string{"status"},
		)

		scrapeSecondaryRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_secondary_requests_total",
				Help: "Requests sent to the fallback extractor, labeled by outcome.",
			},
			[]string{"status"},
		)

		scrapeEmbeddingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_embeddings_total",
				Help: "Embedding attempts, labeled by status.",
			},
			[]string{"status"},
		)

		scrapeEmbeddingsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_embeddings_in_flight",
				Help: "Number of embeddings currently running.",
			},
		)

		scrapeActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_active_workers",
				Help: "Number of worker loops currently handling a job.",
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob records a finished job and how long it ran.
func ObserveJob(jobType, status string, duration time.Duration) {
	Init()
	scrapeJobsTotal.WithLabelValues(jobType, status).Inc()
	scrapeJobDurationSeconds.WithLabelValues(jobType).Observe(duration.Seconds())
}

// ObserveArticle increments the article outcome counter.
func ObserveArticle(status string) {
	Init()
	scrapeArticlesTotal.WithLabelValues(status).Inc()
}

// ObserveSecondaryRequest increments the fallback extractor counter.
func ObserveSecondaryRequest(status string) {
	Init()
	scrapeSecondaryRequestsTotal.WithLabelValues(status).Inc()
}

// ObserveEmbedding increments the embedding counter.
func ObserveEmbedding(status string) {
	Init()
	scrapeEmbeddingsTotal.WithLabelValues(status).Inc()
}

// IncEmbeddingsInFlight increments the in-flight embeddings gauge.
func IncEmbeddingsInFlight() {
	Init()
	scrapeEmbeddingsInFlight.Inc()
}

// DecEmbeddingsInFlight decrements the in-flight embeddings gauge.
func DecEmbeddingsInFlight() {
	Init()
	scrapeEmbeddingsInFlight.Dec()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scrapeActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scrapeActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
