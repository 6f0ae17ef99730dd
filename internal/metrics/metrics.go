// Package metrics defines the thin Collector interface the core calls into.
// Prometheus rendering and the /metrics endpoint are external collaborators
// (spec §1); this package only describes what the core reports and supplies
// a prometheus/client_golang-backed implementation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives the handful of counters/observations the data plane
// produces. A no-op implementation is valid; the core never depends on a
// concrete metrics backend.
type Collector interface {
	RouteMatched(routeID string)
	RouteNotMatched()
	RateLimited(scope string)
	BreakerRejected(target string)
	BreakerStateChange(target, state string)
	ProxyAttempt(routeID string, status int, retried bool)
	ProxyTimeout(routeID string)
}

// NoopCollector discards everything. Useful in tests and as a safe default.
type NoopCollector struct{}

func (NoopCollector) RouteMatched(string)                {}
func (NoopCollector) RouteNotMatched()                    {}
func (NoopCollector) RateLimited(string)                  {}
func (NoopCollector) BreakerRejected(string)               {}
func (NoopCollector) BreakerStateChange(string, string)    {}
func (NoopCollector) ProxyAttempt(string, int, bool)       {}
func (NoopCollector) ProxyTimeout(string)                  {}

// PrometheusCollector implements Collector against client_golang vectors.
// Callers register Registry() with their own HTTP exposition handler; the
// handler itself lives outside the core, per spec §1.
type PrometheusCollector struct {
	routeMatches  *prometheus.CounterVec
	routeMisses   prometheus.Counter
	rateLimited   *prometheus.CounterVec
	breakerReject *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	proxyAttempts *prometheus.CounterVec
	proxyTimeouts *prometheus.CounterVec
	registry      *prometheus.Registry
}

// NewPrometheusCollector builds a collector with its own registry so the
// caller controls exposition independently of the default global registry.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	c := &PrometheusCollector{
		routeMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_route_matches_total",
			Help: "Requests matched to a route, by route_id.",
		}, []string{"route_id"}),
		routeMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_route_misses_total",
			Help: "Requests that matched no route.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_rate_limited_total",
			Help: "Requests denied by the rate limiter, by scope.",
		}, []string{"scope"}),
		breakerReject: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_breaker_rejected_total",
			Help: "Requests rejected by an open circuit breaker, by target.",
		}, []string{"target"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hermes_breaker_state",
			Help: "Current breaker state per target (0=closed,1=half_open,2=open).",
		}, []string{"target"}),
		proxyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_proxy_attempts_total",
			Help: "Upstream proxy attempts, by route_id and status.",
		}, []string{"route_id", "status", "retried"}),
		proxyTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_proxy_timeouts_total",
			Help: "Upstream calls that hit the proxy timeout, by route_id.",
		}, []string{"route_id"}),
		registry: reg,
	}
	reg.MustRegister(c.routeMatches, c.routeMisses, c.rateLimited, c.breakerReject, c.breakerState, c.proxyAttempts, c.proxyTimeouts)
	return c
}

// Registry returns the underlying prometheus registry for exposition.
func (c *PrometheusCollector) Registry() *prometheus.Registry { return c.registry }

func (c *PrometheusCollector) RouteMatched(routeID string) { c.routeMatches.WithLabelValues(routeID).Inc() }
func (c *PrometheusCollector) RouteNotMatched()             { c.routeMisses.Inc() }
func (c *PrometheusCollector) RateLimited(scope string)     { c.rateLimited.WithLabelValues(scope).Inc() }
func (c *PrometheusCollector) BreakerRejected(target string) {
	c.breakerReject.WithLabelValues(target).Inc()
}

func (c *PrometheusCollector) BreakerStateChange(target, state string) {
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	c.breakerState.WithLabelValues(target).Set(v)
}

func (c *PrometheusCollector) ProxyAttempt(routeID string, status int, retried bool) {
	c.proxyAttempts.WithLabelValues(routeID, statusBucket(status), boolStr(retried)).Inc()
}

func (c *PrometheusCollector) ProxyTimeout(routeID string) {
	c.proxyTimeouts.WithLabelValues(routeID).Inc()
}

func statusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
