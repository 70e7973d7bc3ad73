package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	JobsInQueue         prometheus.Gauge
	FetchAttemptsTotal  *prometheus.CounterVec
	ListingsTotal       *prometheus.CounterVec
	CrawlDuration       *prometheus.HistogramVec
	ProxyPoolSize       prometheus.Gauge

	initOnce sync.Once
)

// Init registers all collectors. Safe to call more than once.
func Init() {
	initOnce.Do(register)
}

func register() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	JobsInQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrape_jobs_in_queue",
			Help: "Current number of scrape jobs waiting in the queue.",
		},
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Outbound fetch attempts by outcome.",
		},
		[]string{"host", "outcome"}, // outcome: success, network, captcha
	)

	ListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_total",
			Help: "Crawled listings by classification.",
		},
		[]string{"source", "outcome"}, // outcome: added, seen, failed
	)

	CrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawl_duration_seconds",
			Help:    "Duration of a full crawl of one source.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"source"},
	)

	ProxyPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_pool_size",
			Help: "Number of proxy endpoints loaded in the pool.",
		},
	)
}
