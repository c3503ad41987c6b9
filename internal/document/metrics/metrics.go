package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Issued           *prometheus.CounterVec
	Revoked          prometheus.Counter
	CodeCollisions   prometheus.Counter
	ArtifactFailures prometheus.Counter
	IssueDuration    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_documents_issued_total",
			Help: "Documents issued, by document type",
		}, []string{"document_type"}),
		Revoked: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_documents_revoked_total",
			Help: "Documents revoked, including supersessions",
		}),
		CodeCollisions: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_verification_code_collisions_total",
			Help: "Freshly minted verification codes that were already taken",
		}),
		ArtifactFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_artifact_failures_total",
			Help: "PDF artifacts that could not be rendered or stored",
		}),
		IssueDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docverify_document_issue_duration_seconds",
			Help:    "Time to issue a document, excluding artifact upload",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncIssued(docType string) {
	if m != nil {
		m.Issued.WithLabelValues(docType).Inc()
	}
}

func (m *Metrics) IncRevoked() {
	if m != nil {
		m.Revoked.Inc()
	}
}

func (m *Metrics) IncCodeCollision() {
	if m != nil {
		m.CodeCollisions.Inc()
	}
}

func (m *Metrics) IncArtifactFailure() {
	if m != nil {
		m.ArtifactFailures.Inc()
	}
}

func (m *Metrics) ObserveIssueDuration(seconds float64) {
	if m != nil {
		m.IssueDuration.Observe(seconds)
	}
}
