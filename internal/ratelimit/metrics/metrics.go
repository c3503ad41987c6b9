package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions    *prometheus.CounterVec
	StoreErrors  prometheus.Counter
	BreakerState prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_ratelimit_decisions_total",
			Help: "Rate limit decisions by scope and outcome",
		}, []string{"scope", "outcome"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_ratelimit_store_errors_total",
			Help: "Rate limit store failures that triggered the fallback path",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "docverify_ratelimit_degraded",
			Help: "1 while the limiter runs on the in-process fallback",
		}),
	}
}

func (m *Metrics) ObserveDecision(scope string, allowed, degraded bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "blocked"
	}
	if degraded {
		outcome += "_degraded"
	}
	m.Decisions.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) IncStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}
