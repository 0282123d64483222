// Package metrics wires the process Prometheus registry and exposes
// the scrape handler. Component collectors register here once at
// startup; tests construct components without metrics and skip the
// registry entirely.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keywheel-hq/keywheel/pkg/dispatch"
	"keywheel-hq/keywheel/pkg/pool"
)

// Registry bundles the process registry with the component collectors.
type Registry struct {
	reg *prometheus.Registry

	// Pool holds the credential pool collectors.
	Pool *pool.Metrics

	// Dispatch holds the retry orchestrator collectors.
	Dispatch *dispatch.Metrics
}

// NewRegistry creates the registry with runtime and component
// collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:      reg,
		Pool:     pool.NewMetrics(reg),
		Dispatch: dispatch.NewMetrics(reg),
	}
}

// Handler returns the Prometheus scrape handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
