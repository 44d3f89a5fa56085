package execution

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "signing_service",
		Name:      "request_results_total",
		Help:      "Signing service request outcomes per endpoint.",
	}, []string{"endpoint", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bridge",
		Subsystem: "signing_service",
		Name:      "request_duration_seconds",
		Help:      "Signing service request latency per endpoint.",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"endpoint"})

	TransactionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "signing_service",
		Name:      "transaction_outcomes_total",
		Help:      "Final states observed while waiting for submitted transactions.",
	}, []string{"state"})
)

func ObserveError(endpoint string, err error) {
	switch {
	case err == nil:
		RequestResults.WithLabelValues(endpoint, "ok").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		RequestResults.WithLabelValues(endpoint, "timeout").Inc()
	default:
		RequestResults.WithLabelValues(endpoint, "error").Inc()
	}
}

func ObserveDuration(endpoint string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(endpoint)).ObserveDuration
}
