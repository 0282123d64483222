package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pool's Prometheus collectors. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry
// collisions.
type Metrics struct {
	acquireTotal     *prometheus.CounterVec
	acquireFailures  *prometheus.CounterVec
	reportedOutcomes *prometheus.CounterVec
	deactivations    *prometheus.CounterVec
	cooldowns        *prometheus.CounterVec
	eligibleGauge    *prometheus.GaugeVec
}

// NewMetrics registers the pool collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		acquireTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keywheel_pool_acquire_total",
			Help: "Credential acquisitions by profile and strategy.",
		}, []string{"profile", "strategy"}),
		acquireFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keywheel_pool_acquire_failures_total",
			Help: "Acquire calls that found no eligible credential.",
		}, []string{"profile"}),
		reportedOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keywheel_pool_reported_outcomes_total",
			Help: "Request outcomes reported back to the pool.",
		}, []string{"profile", "outcome"}),
		deactivations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keywheel_pool_deactivations_total",
			Help: "Credentials deactivated after repeated failures.",
		}, []string{"profile"}),
		cooldowns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keywheel_pool_cooldowns_total",
			Help: "Rate limit cooldowns applied to credentials.",
		}, []string{"profile"}),
		eligibleGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keywheel_pool_eligible_credentials",
			Help: "Eligible credentials observed at the last acquire.",
		}, []string{"profile"}),
	}
}

func (m *Metrics) recordAcquire(profile, strategy string, eligible int) {
	if m == nil {
		return
	}
	m.acquireTotal.WithLabelValues(profile, strategy).Inc()
	m.eligibleGauge.WithLabelValues(profile).Set(float64(eligible))
}

func (m *Metrics) recordAcquireFailure(profile string) {
	if m == nil {
		return
	}
	m.acquireFailures.WithLabelValues(profile).Inc()
	m.eligibleGauge.WithLabelValues(profile).Set(0)
}

func (m *Metrics) recordOutcome(profile, outcome string) {
	if m == nil {
		return
	}
	m.reportedOutcomes.WithLabelValues(profile, outcome).Inc()
}

func (m *Metrics) recordDeactivation(profile string) {
	if m == nil {
		return
	}
	m.deactivations.WithLabelValues(profile).Inc()
}

func (m *Metrics) recordCooldown(profile string) {
	if m == nil {
		return
	}
	m.cooldowns.WithLabelValues(profile).Inc()
}
