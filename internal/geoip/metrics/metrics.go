package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Resolutions      *prometheus.CounterVec
	ProviderFailures *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	CacheErrors      prometheus.Counter
	SweepEvicted     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_geoip_resolutions_total",
			Help: "GeoIP resolutions by source",
		}, []string{"source"}),
		ProviderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docverify_geoip_provider_failures_total",
			Help: "GeoIP provider failures by provider and category",
		}, []string{"provider", "category"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docverify_geoip_provider_duration_seconds",
			Help:    "GeoIP provider call latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3},
		}, []string{"provider"}),
		CacheErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_geoip_cache_errors_total",
			Help: "GeoIP cache read or write failures",
		}),
		SweepEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "docverify_geoip_cache_evicted_total",
			Help: "Expired GeoIP cache entries removed by the sweeper",
		}),
	}
}

func (m *Metrics) IncResolution(source string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(source).Inc()
}

func (m *Metrics) IncProviderFailure(provider, category string) {
	if m == nil {
		return
	}
	m.ProviderFailures.WithLabelValues(provider, category).Inc()
}

func (m *Metrics) ObserveProvider(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) IncCacheError() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}

func (m *Metrics) AddSweepEvicted(n int) {
	if m == nil {
		return
	}
	m.SweepEvicted.Add(float64(n))
}
