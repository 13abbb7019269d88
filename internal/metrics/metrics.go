// Package metrics exposes Prometheus metrics for OIDC client operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values that are not derived from a SecretResult status
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secret_sync_oidc_operations_total",
		Help: "Total number of OIDC client operations by provider, operation and outcome",
	}, []string{"provider", "operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secret_sync_oidc_operation_duration_seconds",
		Help:    "Duration of OIDC client operations including the backend round trip",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
)

// ObserveOperation records one completed operation
func ObserveOperation(provider, operation, outcome string, elapsed time.Duration) {
	operationsTotal.WithLabelValues(provider, operation, outcome).Inc()
	operationDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
