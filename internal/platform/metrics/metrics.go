package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the server's Prometheus registry.
type Collector struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	auth     *prometheus.CounterVec
	jobs     *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erpadmin",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "erpadmin",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erpadmin",
			Name:      "auth_events_total",
			Help:      "Auth operations by kind and outcome.",
		}, []string{"event", "outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erpadmin",
			Name:      "job_runs_total",
			Help:      "Background job runs by type and status.",
		}, []string{"job", "status"}),
	}
	c.registry.MustRegister(c.requests, c.duration, c.auth, c.jobs)
	return c
}

func (c *Collector) Record(route, method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(route).Observe(duration.Seconds())
}

// AuthEvent counts a login, logout, refresh or me call. outcome is a short
// code such as "ok" or "invalid_credentials".
func (c *Collector) AuthEvent(event, outcome string) {
	if c == nil {
		return
	}
	c.auth.WithLabelValues(event, outcome).Inc()
}

func (c *Collector) JobRun(jobType, status string, _ time.Duration) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(jobType, status).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
