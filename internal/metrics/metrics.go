// Package metrics provides optional Prometheus instrumentation for the
// registry client's HTTP transport. A Collector owns its own registry so
// that multiple Clients (and multiple test runs) can each construct one
// without colliding on a global default registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector instruments outgoing registry requests: counts, latency, and
// retry/auth-challenge occurrences, broken down by host and status.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	authChallenges  *prometheus.CounterVec
	digestFailures  prometheus.Counter
}

// NewCollector constructs a Collector with its own Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regclient_requests_total",
				Help: "Total registry HTTP requests by host and status.",
			},
			[]string{"host", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regclient_request_duration_seconds",
				Help:    "Registry HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host", "status"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regclient_retries_total",
				Help: "Total retry attempts after a 429 response, by host.",
			},
			[]string{"host"},
		),
		authChallenges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regclient_auth_challenges_total",
				Help: "Total WWW-Authenticate challenges handled, by host.",
			},
			[]string{"host"},
		),
		digestFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "regclient_digest_mismatches_total",
				Help: "Total blob fetches that failed digest verification.",
			},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.retriesTotal,
		c.authChallenges,
		c.digestFailures,
	)
	return c
}

// Handler exposes this Collector's metrics for a consumer to mount on
// their own mux; the library never runs an HTTP server of its own.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed request.
func (c *Collector) ObserveRequest(host string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	c.requestsTotal.WithLabelValues(host, statusStr).Inc()
	c.requestDuration.WithLabelValues(host, statusStr).Observe(duration.Seconds())
}

// ObserveRetry records one 429-triggered retry.
func (c *Collector) ObserveRetry(host string) {
	c.retriesTotal.WithLabelValues(host).Inc()
}

// ObserveAuthChallenge records one WWW-Authenticate challenge handled.
func (c *Collector) ObserveAuthChallenge(host string) {
	c.authChallenges.WithLabelValues(host).Inc()
}

// ObserveDigestMismatch records one failed blob digest verification.
func (c *Collector) ObserveDigestMismatch() {
	c.digestFailures.Inc()
}
