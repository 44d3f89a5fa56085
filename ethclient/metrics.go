package ethclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "rpc",
		Name:      "request_results_total",
		Help:      "JSON-RPC request outcomes per chain and method.",
	}, []string{"chain", "query", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bridge",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "JSON-RPC request latency per chain and method.",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"chain", "query"})
)

func ObserveError(chain, query string, err error) {
	if err != nil {
		var rpcErr rpc.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			RequestResults.WithLabelValues(chain, query, "timeout").Inc()
		case errors.As(err, &rpcErr):
			RequestResults.WithLabelValues(chain, query, fmt.Sprintf("error-%d", rpcErr.ErrorCode())).Inc()
		default:
			RequestResults.WithLabelValues(chain, query, "error").Inc()
		}
	} else {
		RequestResults.WithLabelValues(chain, query, "ok").Inc()
	}
}

func ObserveDuration(chain, query string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(chain, query)).ObserveDuration
}
