package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dispatch Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec
	attempts      *prometheus.HistogramVec
}

// NewMetrics registers the dispatch collectors with the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keywheel_dispatch_requests_total",
			Help: "Dispatched requests by profile and terminal outcome.",
		}, []string{"profile", "outcome"}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keywheel_dispatch_retries_total",
			Help: "Retry transitions taken after a retryable failure.",
		}, []string{"profile"}),
		attempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keywheel_dispatch_attempts",
			Help:    "Attempts needed per terminal request.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}, []string{"profile"}),
	}
}

func (m *Metrics) recordRequest(profile, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(profile, outcome).Inc()
	m.attempts.WithLabelValues(profile).Observe(float64(attempts))
}

func (m *Metrics) recordRetry(profile string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(profile).Inc()
}
