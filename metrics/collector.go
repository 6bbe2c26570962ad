// Package metrics exposes lookup, browser and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/placafipe/models"
)

// SessionSource reports browser session state. *browser.Manager
// implements it.
type SessionSource interface {
	Stats() models.SessionStats
}

// Collector holds the service metrics in its own registry, separate from
// prometheus.DefaultRegisterer.
type Collector struct {
	registry *prometheus.Registry

	lookupsTotal   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	lookupAttempts prometheus.Histogram

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers every metric under namespace. sessions may be nil,
// in which case the browser gauges are left out.
func NewCollector(namespace string, sessions SessionSource) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	// Lookup metrics
	c.lookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Total number of plate lookups by outcome",
		},
		[]string{"outcome", "source"},
	)
	c.lookupDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Plate lookup duration in seconds, retries included",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		},
		[]string{"outcome"},
	)
	c.lookupAttempts = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_attempts",
			Help:      "Pipeline attempts per lookup",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	// HTTP metrics
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Browser metrics, read from the session manager at scrape time.
	if sessions != nil {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "browser_contexts_open",
				Help:      "Browsing contexts currently leased",
			},
			func() float64 { return float64(sessions.Stats().OpenContexts) },
		)
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "browser_contexts_max",
				Help:      "Admission gate size for browsing contexts",
			},
			func() float64 { return float64(sessions.Stats().MaxContexts) },
		)
		factory.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_launches_total",
				Help:      "Browser engine launches attempted",
			},
			func() float64 { return float64(sessions.Stats().Launches) },
		)
		factory.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_launch_failures_total",
				Help:      "Browser engine launches that failed",
			},
			func() float64 { return float64(sessions.Stats().LaunchFailures) },
		)
	}

	return c
}

// ObserveLookup records a finished lookup.
func (c *Collector) ObserveLookup(outcome, source string, elapsed time.Duration, attempts int) {
	c.lookupsTotal.WithLabelValues(outcome, source).Inc()
	c.lookupDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if attempts > 0 {
		c.lookupAttempts.Observe(float64(attempts))
	}
}

// ObserveHTTP records a served HTTP request. route is the matched route
// template, never the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
