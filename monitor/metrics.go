package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bridge",
		Subsystem: "resumer",
		Name:      "transfers",
		Help:      "Shows the number of stored transfers in each status.",
	}, []string{"status"})
	StuckTransfers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "resumer",
		Name:      "stuck_transfers",
		Help:      "Shows unfinished transfers that were not updated for too long, value is the age in seconds.",
	}, []string{"transfer_id", "status", "source_chain", "destination_chain"})
	ResumedTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "resumer",
		Name:      "resumed_transfers_total",
		Help:      "Counts transfers touched by the resumer, labeled by the action and its result.",
	}, []string{"action", "result"})
)
