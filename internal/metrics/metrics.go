package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the vault's Prometheus collectors on a private registry.
type Registry struct {
	reg *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	AmountMoved       *prometheus.CounterVec
}

// NewRegistry creates and registers all vault metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_vault_operations_total",
				Help: "Vault operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "token_vault_operation_duration_seconds",
				Help:    "Duration of vault operations including token calls",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		AmountMoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_vault_amount_moved_total",
				Help: "Token units moved by successful vault operations",
			},
			[]string{"operation"},
		),
	}

	r.reg.MustRegister(
		r.Operations,
		r.OperationDuration,
		r.AmountMoved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Observe records one finished operation. Nil receivers are ignored.
func (r *Registry) Observe(operation, outcome string, amount uint64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Operations.WithLabelValues(operation, outcome).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if outcome == "ok" {
		r.AmountMoved.WithLabelValues(operation).Add(float64(amount))
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
