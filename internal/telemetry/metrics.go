package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the assistant gateway.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	UpstreamCallTotal *prometheus.CounterVec
	GuardActionTotal  *prometheus.CounterVec
	CacheEvictions    prometheus.Counter
	CooldownTrips     *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the given registerer.
// Tests pass a fresh prometheus.NewRegistry to avoid collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_request_total",
			Help: "Total number of HTTP requests processed by the gateway.",
		}, []string{"route", "status"}),

		RequestDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assistant_request_duration_ms",
			Help:    "Request duration in milliseconds (including model latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"route"}),

		UpstreamCallTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_upstream_call_total",
			Help: "Upstream model call outcomes (ok, cached, offline, quota, unavailable, error).",
		}, []string{"outcome"}),

		GuardActionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_guard_action_total",
			Help: "Intent pipeline guard downgrades and overrides by stage.",
		}, []string{"stage"}),

		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "assistant_knowledge_cache_evictions_total",
			Help: "Knowledge cache entries evicted at capacity.",
		}),

		CooldownTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_cooldown_trips_total",
			Help: "Times the upstream cool-down clock was armed, by cause (quota, overload).",
		}, []string{"cause"}),
	}
}

// RecordRequest records metrics for a completed HTTP request.
func (m *Metrics) RecordRequest(route, status string, durationMs float64) {
	m.RequestTotal.WithLabelValues(route, status).Inc()
	m.RequestDurationMs.WithLabelValues(route).Observe(durationMs)
}

// RecordUpstream records a model call outcome.
func (m *Metrics) RecordUpstream(outcome string) {
	m.UpstreamCallTotal.WithLabelValues(outcome).Inc()
}

// RecordGuard records a guard stage firing.
func (m *Metrics) RecordGuard(stage string) {
	m.GuardActionTotal.WithLabelValues(stage).Inc()
}
