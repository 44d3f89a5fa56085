package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var PublishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bridge",
	Subsystem: "notifier",
	Name:      "published_events_total",
	Help:      "Progress events sent to the message broker.",
}, []string{"routing_key", "result"})
