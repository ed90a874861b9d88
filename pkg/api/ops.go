package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medora/medora/pkg/observability"
)

// NewOpsHandler serves health probes and, when registry is not nil,
// Prometheus metrics. It is meant for a separate internal port.
func NewOpsHandler(checker *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, checker)
	if registry != nil {
		observability.RegisterMetricsEndpoint(mux, registry)
	}
	return mux
}
