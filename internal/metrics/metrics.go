// Package metrics exposes Prometheus counters and histograms for the
// quantities SPEC_FULL.md's domain stack calls out explicitly: turn count,
// tool-call count, and provider latency. Grounded on hector's
// pkg/observability/metrics.go (CounterVec/HistogramVec-per-concern shape,
// nil-receiver no-op methods so a caller that never wires metrics never has
// to nil-check), narrowed to the handful of series this server's components
// actually emit rather than hector's full agent/HTTP/RAG surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus series the gateway emits. A nil *Metrics
// is a valid no-op receiver, so components hold it unconditionally and
// callers that don't enable telemetry never branch on whether it's present.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	turnIterations *prometheus.HistogramVec

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolErrorsTotal  *prometheus.CounterVec

	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	providerErrorsTotal  *prometheus.CounterVec

	gardenerTicksTotal *prometheus.CounterVec
	gardenerTickDur    *prometheus.HistogramVec

	subagentRunsTotal *prometheus.CounterVec
}

// New builds a Metrics registry. namespace prefixes every series name
// (e.g. "aria"), matching the teacher's config.Namespace convention.
func New(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.turnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "agent", Name: "turns_total",
		Help: "Total number of Agent Turn Engine runs, by completion outcome.",
	}, []string{"outcome"})
	m.turnDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "agent", Name: "turn_duration_seconds",
		Help:    "Wall-clock duration of one Agent Turn Engine run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"outcome"})
	m.turnIterations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "agent", Name: "turn_iterations",
		Help:    "Number of tool-use iterations consumed per turn.",
		Buckets: prometheus.LinearBuckets(1, 1, 12),
	}, []string{"outcome"})

	m.toolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "skill", Name: "calls_total",
		Help: "Total number of skill invocations.",
	}, []string{"skill"})
	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "skill", Name: "call_duration_seconds",
		Help:    "Skill handler execution duration.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"skill"})
	m.toolErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "skill", Name: "errors_total",
		Help: "Total number of skill invocations that returned an error result.",
	}, []string{"skill"})

	m.providerCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "provider", Name: "calls_total",
		Help: "Total number of LLM provider calls, by provider and tier.",
	}, []string{"provider", "tier"})
	m.providerCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "provider", Name: "call_duration_seconds",
		Help:    "LLM provider call latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider", "tier"})
	m.providerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "provider", Name: "errors_total",
		Help: "Total number of failed LLM provider calls, by provider and tier.",
	}, []string{"provider", "tier"})

	m.gardenerTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gardener", Name: "ticks_total",
		Help: "Total number of Background Gardener ticks, by tier.",
	}, []string{"tier"})
	m.gardenerTickDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "gardener", Name: "tick_duration_seconds",
		Help:    "Background Gardener tick duration, by tier.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
	}, []string{"tier"})

	m.subagentRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "subagent", Name: "runs_total",
		Help: "Total number of Sub-Agent Scheduler runs, by terminal status.",
	}, []string{"status"})

	m.registry.MustRegister(
		m.turnsTotal, m.turnDuration, m.turnIterations,
		m.toolCallsTotal, m.toolCallDuration, m.toolErrorsTotal,
		m.providerCallsTotal, m.providerCallDuration, m.providerErrorsTotal,
		m.gardenerTicksTotal, m.gardenerTickDur,
		m.subagentRunsTotal,
	)
	return m
}

// RecordTurn records one completed Agent Turn Engine run.
func (m *Metrics) RecordTurn(outcome string, duration time.Duration, iterations int) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.turnIterations.WithLabelValues(outcome).Observe(float64(iterations))
}

// RecordToolCall records one skill invocation.
func (m *Metrics) RecordToolCall(skill string, duration time.Duration, isError bool) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(skill).Inc()
	m.toolCallDuration.WithLabelValues(skill).Observe(duration.Seconds())
	if isError {
		m.toolErrorsTotal.WithLabelValues(skill).Inc()
	}
}

// RecordProviderCall records one LLM provider call.
func (m *Metrics) RecordProviderCall(provider, tier string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.providerCallsTotal.WithLabelValues(provider, tier).Inc()
	m.providerCallDuration.WithLabelValues(provider, tier).Observe(duration.Seconds())
	if err != nil {
		m.providerErrorsTotal.WithLabelValues(provider, tier).Inc()
	}
}

// RecordGardenerTick records one Background Gardener tick.
func (m *Metrics) RecordGardenerTick(tier string, duration time.Duration) {
	if m == nil {
		return
	}
	m.gardenerTicksTotal.WithLabelValues(tier).Inc()
	m.gardenerTickDur.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordSubagentRun records one terminal Sub-Agent Scheduler run.
func (m *Metrics) RecordSubagentRun(status string) {
	if m == nil {
		return
	}
	m.subagentRunsTotal.WithLabelValues(status).Inc()
}

// Handler serves the Prometheus exposition format for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
