// Package metrics defines the Prometheus collectors exported by the lookup
// service and the /metrics handler that serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "veicheck"

// DefaultBuckets are the provider latency buckets (in seconds).
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Lookup holds the resolver and chassis collectors. A nil *Lookup is valid
// and records nothing.
type Lookup struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	RequestLogFails prometheus.Counter
	ChassisChecks   *prometheus.CounterVec
	BreakerState    prometheus.Gauge
}

// NewLookup creates the collectors and registers them with reg.
func NewLookup(reg prometheus.Registerer) *Lookup {
	m := &Lookup{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lookup", Name: "cache_hits_total",
			Help: "Lookups served from a fresh stored record.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lookup", Name: "cache_misses_total",
			Help: "Lookups that required a provider call.",
		}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "provider", Name: "calls_total",
			Help: "Provider calls by endpoint variant and outcome category.",
		}, []string{"variant", "category"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "provider", Name: "duration_seconds",
			Help: "Provider call latency.", Buckets: DefaultBuckets,
		}, []string{"variant"}),
		RequestLogFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lookup", Name: "request_log_failures_total",
			Help: "Request log entries that could not be appended.",
		}),
		ChassisChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chassis", Name: "checks_total",
			Help: "Chassis validations by result.",
		}, []string{"result"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "provider", Name: "breaker_state",
			Help: "Provider circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CacheHits, m.CacheMisses, m.ProviderCalls, m.ProviderLatency,
			m.RequestLogFails, m.ChassisChecks, m.BreakerState)
	}
	return m
}

// CacheHit records a fresh stored record being served.
func (m *Lookup) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// CacheMiss records a lookup that needs the provider.
func (m *Lookup) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

// ProviderCall records one provider call. An empty category means success.
func (m *Lookup) ProviderCall(variant, category string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if category == "" {
		category = "ok"
	}
	m.ProviderCalls.WithLabelValues(variant, category).Inc()
	m.ProviderLatency.WithLabelValues(variant).Observe(elapsed.Seconds())
}

// RequestLogFailed records a failed request log append.
func (m *Lookup) RequestLogFailed() {
	if m != nil {
		m.RequestLogFails.Inc()
	}
}

// ChassisChecked records a chassis validation outcome.
func (m *Lookup) ChassisChecked(result string) {
	if m != nil {
		m.ChassisChecks.WithLabelValues(result).Inc()
	}
}

// SetBreakerState records the numeric circuit breaker state.
func (m *Lookup) SetBreakerState(state int) {
	if m != nil {
		m.BreakerState.Set(float64(state))
	}
}

// NewRegistry returns a registry preloaded with Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
