// Package metrics exposes Prometheus counters for the API client: requests by
// method and status, refresh outcomes, requests parked behind a refresh, and
// replays.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metric names.
const (
	MetricRequestsTotal          = "opportuci_client_requests_total"
	MetricRequestDurationSeconds = "opportuci_client_request_duration_seconds"
	MetricRefreshesTotal         = "opportuci_client_refreshes_total"
	MetricRefreshWaitersTotal    = "opportuci_client_refresh_waiters_total"
	MetricReplaysTotal           = "opportuci_client_replays_total"
	MetricTransportRetriesTotal  = "opportuci_client_transport_retries_total"
)

// Refresh outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeShared  = "shared" // another process refreshed while we waited on the lock
)

// Collector owns a private registry so several clients (e.g. in tests) never
// collide on registration.
//
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	refreshesTotal         *prometheus.CounterVec
	refreshWaitersTotal    prometheus.Counter
	replaysTotal           prometheus.Counter
	transportRetriesTotal  prometheus.Counter
}

// NewCollector creates and registers all client metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRequestsTotal,
			Help: "HTTP requests sent, by method and status code (0 = no response).",
		}, []string{"method", "code"}),
		requestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRequestDurationSeconds,
			Help:    "Round trip duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		refreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRefreshesTotal,
			Help: "Token refreshes, by outcome.",
		}, []string{"outcome"}),
		refreshWaitersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRefreshWaitersTotal,
			Help: "Requests that waited on an in-flight refresh instead of starting one.",
		}),
		replaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReplaysTotal,
			Help: "Requests replayed after a 401.",
		}),
		transportRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricTransportRetriesTotal,
			Help: "Idempotent requests retried after a transport error.",
		}),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDurationSeconds,
		c.refreshesTotal,
		c.refreshWaitersTotal,
		c.replaysTotal,
		c.transportRetriesTotal,
	)
	return c
}

// Registry returns the registry holding the client metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Server returns an http.Server exposing Handler on addr under /metrics.
func (c *Collector) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func (c *Collector) ObserveRequest(method string, statusCode int, d time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.requestDurationSeconds.WithLabelValues(method).Observe(d.Seconds())
}

func (c *Collector) ObserveRefresh(outcome string) {
	if c == nil {
		return
	}
	c.refreshesTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveRefreshWaiter() {
	if c == nil {
		return
	}
	c.refreshWaitersTotal.Inc()
}

func (c *Collector) ObserveReplay() {
	if c == nil {
		return
	}
	c.replaysTotal.Inc()
}

func (c *Collector) ObserveTransportRetry() {
	if c == nil {
		return
	}
	c.transportRetriesTotal.Inc()
}

// RequestCount returns requests_total for method and code. Test helper.
func (c *Collector) RequestCount(method string, statusCode int) float64 {
	return counterValue(c.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)))
}

// RefreshCount returns refreshes_total for outcome. Test helper.
func (c *Collector) RefreshCount(outcome string) float64 {
	return counterValue(c.refreshesTotal.WithLabelValues(outcome))
}

// WaiterCount returns refresh_waiters_total. Test helper.
func (c *Collector) WaiterCount() float64 {
	return counterValue(c.refreshWaitersTotal)
}

// ReplayCount returns replays_total. Test helper.
func (c *Collector) ReplayCount() float64 {
	return counterValue(c.replaysTotal)
}

// TransportRetryCount returns transport_retries_total. Test helper.
func (c *Collector) TransportRetryCount() float64 {
	return counterValue(c.transportRetriesTotal)
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
