package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Appended   *prometheus.CounterVec
	Deferred   prometheus.Counter
	Retried    prometheus.Counter
	Lost       *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

// NewMetrics registers the audit recorder collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Appended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_audit_appended_total",
			Help: "Audit events appended to the store, by kind",
		}, []string{"kind"}),
		Deferred: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_audit_deferred_total",
			Help: "Audit events whose first append failed and were queued for retry",
		}),
		Retried: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_audit_retried_total",
			Help: "Queued audit events appended on a later attempt",
		}),
		Lost: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_audit_lost_total",
			Help: "Audit events that could not be persisted, by reason",
		}, []string{"reason"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "docverify_audit_queue_depth",
			Help: "Audit events waiting in the retry queue",
		}),
	}
}
