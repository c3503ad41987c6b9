package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Outcomes          *prometheus.CounterVec
	Duration          *prometheus.HistogramVec
	IntegrityFailures prometheus.Counter
	AuditDeferred     prometheus.Counter
	AuditLost         prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_verifications_total",
			Help: "Verification attempts by outcome",
		}, []string{"result"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docverify_verification_duration_seconds",
			Help:    "Verification latency by outcome",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"result"}),
		IntegrityFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_integrity_failures_total",
			Help: "Stored records whose signature or hash no longer matched",
		}),
		AuditDeferred: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_verification_audit_deferred_total",
			Help: "Verification events queued for retry instead of written inline",
		}),
		AuditLost: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_verification_audit_rejected_total",
			Help: "Verification events the recorder refused (queue full or closed)",
		}),
	}
}

func (m *Metrics) ObserveOutcome(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(result).Inc()
	m.Duration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) IncIntegrityFailure() {
	if m != nil {
		m.IntegrityFailures.Inc()
	}
}

func (m *Metrics) IncAuditDeferred() {
	if m != nil {
		m.AuditDeferred.Inc()
	}
}

func (m *Metrics) IncAuditLost() {
	if m != nil {
		m.AuditLost.Inc()
	}
}
