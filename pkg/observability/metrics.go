package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry builds the process-wide Prometheus registerer. Every
// package that defines its own collectors (pkg/tools/dispatch.go, this
// package's HTTP middleware) registers onto this one registry at startup so a single
// /metrics endpoint serves the whole process.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler returns the HTTP handler serving reg in the Prometheus
// exposition format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
