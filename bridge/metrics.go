package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "orchestrator",
		Name:      "status_transitions_total",
		Help:      "Persisted transfer status transitions.",
	}, []string{"from", "to"})

	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "orchestrator",
		Name:      "operation_errors_total",
		Help:      "Orchestrator operation failures by error kind.",
	}, []string{"operation", "kind"})

	DuplicateMints = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "orchestrator",
		Name:      "duplicate_mints_total",
		Help:      "Mint attempts rejected because the message was already received.",
	})
)
