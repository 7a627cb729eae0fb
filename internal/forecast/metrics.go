package forecast

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for the requests counter.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Metrics collects engine counters. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  prometheus.Histogram
	baselines *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finora",
			Subsystem: "forecast",
			Name:      "requests_total",
			Help:      "Forecast calculations by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finora",
			Subsystem: "forecast",
			Name:      "duration_seconds",
			Help:      "Forecast calculation latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		baselines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finora",
			Subsystem: "forecast",
			Name:      "baseline_resolutions_total",
			Help:      "Baseline resolutions by origin.",
		}, []string{"origin"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finora",
			Subsystem: "forecast",
			Name:      "legacy_source_failures_total",
			Help:      "Failed reads of legacy ledger aliases that were counted as zero.",
		}, []string{"ledger", "alias"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.baselines, m.fallbacks)
	}
	return m
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) baseline(origin Origin) {
	if m == nil {
		return
	}
	m.baselines.WithLabelValues(string(origin)).Inc()
}

func (m *Metrics) fallback(kind, alias string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(kind, alias).Inc()
}
