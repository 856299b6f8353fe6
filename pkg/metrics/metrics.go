// Package metrics exposes Prometheus collectors for the voice pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	spend     *prometheus.CounterVec
	savings   prometheus.Counter
	degraded  *prometheus.CounterVec
	synthTime *prometheus.HistogramVec
	hitRate   prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neuron_voice_requests_total",
				Help: "Voice requests by cache tier and provider",
			},
			[]string{"cache", "provider"},
		),
		spend: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neuron_voice_spend_dollars_total",
				Help: "Synthesis spend in dollars",
			},
			[]string{"provider", "tier"},
		),
		savings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neuron_voice_savings_dollars_total",
			Help: "Synthesis cost avoided by cache hits",
		}),
		degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neuron_cache_degraded_total",
				Help: "Cache tier failures that were bypassed",
			},
			[]string{"tier", "op"},
		),
		synthTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neuron_synthesis_seconds",
				Help:    "Provider synthesis latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		hitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neuron_cache_hit_ratio",
			Help: "Share of voice requests served from cache since start",
		}),
	}
	reg.MustRegister(m.requests, m.spend, m.savings, m.degraded, m.synthTime, m.hitRate)
	return m
}

// Request counts one voice request served from cache ("hot", "cold") or "miss".
func (m *Metrics) Request(cache, provider string) {
	m.requests.WithLabelValues(cache, provider).Inc()
}

// Spend adds a paid synthesis.
func (m *Metrics) Spend(provider, tier string, dollars float64) {
	m.spend.WithLabelValues(provider, tier).Add(dollars)
}

// Saved adds cost avoided by a hit.
func (m *Metrics) Saved(dollars float64) {
	if dollars > 0 {
		m.savings.Add(dollars)
	}
}

// Degraded counts a bypassed cache tier failure.
func (m *Metrics) Degraded(tier, op string) {
	m.degraded.WithLabelValues(tier, op).Inc()
}

// ObserveSynthesis records provider latency.
func (m *Metrics) ObserveSynthesis(provider string, d time.Duration) {
	m.synthTime.WithLabelValues(provider).Observe(d.Seconds())
}

// SetHitRate publishes the current hit ratio.
func (m *Metrics) SetHitRate(r float64) {
	m.hitRate.Set(r)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
