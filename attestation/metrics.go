package attestation

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
		Subsystem: "attestation",
		Name:      "request_results_total",
		Help:      "Attestation oracle request outcomes per source domain.",
	}, []string{"source_domain", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bridge",
		Subsystem: "attestation",
		Name:      "request_duration_seconds",
		Help:      "Attestation oracle request latency per source domain.",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"source_domain"})
)

func ObserveResult(domain, status string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		RequestResults.WithLabelValues(domain, "timeout").Inc()
	case err != nil:
		RequestResults.WithLabelValues(domain, "error").Inc()
	default:
		RequestResults.WithLabelValues(domain, status).Inc()
	}
}

func ObserveDuration(domain string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(domain)).ObserveDuration
}
