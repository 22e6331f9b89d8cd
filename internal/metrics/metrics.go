// Package metrics exposes Prometheus collectors for the catalog crawler.
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
	crawlItemsTotal         *prometheus.CounterVec
	crawlJobsTotal          *prometheus.CounterVec
	crawlItemErrorsTotal    *prometheus.CounterVec
	catalogUpsertsTotal     *prometheus.CounterVec
	imageVerificationsTotal *prometheus.CounterVec
	imageResolutionsTotal   *prometheus.CounterVec
	rateLimitDelaySeconds   *prometheus.HistogramVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestSeconds      *prometheus.HistogramVec
	activeJobs              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawl_items_total",
				Help: "Total number of items discovered per source.",
			},
			[]string{"source"},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawl_jobs_total",
				Help: "Total number of crawl jobs processed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		crawlItemErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawl_item_errors_total",
				Help: "Total number of per-item extraction errors, labeled by kind.",
			},
			[]string{"source", "kind"},
		)

		catalogUpsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_upserts_total",
				Help: "Total number of catalog upserts, labeled by outcome (created, merged, unchanged, error).",
			},
			[]string{"outcome"},
		)

		imageVerificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_image_verifications_total",
				Help: "Total number of image URL verification checks, labeled by result.",
			},
			[]string{"result"},
		)

		imageResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_image_resolutions_total",
				Help: "Total number of resolved primary image URLs, labeled by provider tag.",
			},
			[]string{"provider"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_rate_limit_delay_seconds",
				Help:    "Histogram of per-source rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies per route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_active_crawl_jobs",
				Help: "Number of crawl jobs currently running.",
			},
		)
	})
}

// Handler returns an http.Handler exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem increments the discovered-item counter for a source.
func ObserveItem(source string) {
	Init()
	crawlItemsTotal.WithLabelValues(source).Inc()
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	Init()
	crawlJobsTotal.WithLabelValues(status).Inc()
}

// ObserveItemError increments the per-item error counter.
func ObserveItemError(source, kind string) {
	Init()
	crawlItemErrorsTotal.WithLabelValues(source, kind).Inc()
}

// ObserveUpsert increments the upsert counter for an outcome.
func ObserveUpsert(outcome string) {
	Init()
	catalogUpsertsTotal.WithLabelValues(outcome).Inc()
}

// ObserveVerification increments the verification counter ("ok" or "rejected").
func ObserveVerification(result string) {
	Init()
	imageVerificationsTotal.WithLabelValues(result).Inc()
}

// ObserveResolution increments the resolution counter for a provider tag.
func ObserveResolution(provider string) {
	Init()
	imageResolutionsTotal.WithLabelValues(provider).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(source string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncActiveJobs increments the running-jobs gauge.
func IncActiveJobs() {
	Init()
	activeJobs.Inc()
}

// DecActiveJobs decrements the running-jobs gauge.
func DecActiveJobs() {
	Init()
	activeJobs.Dec()
}
