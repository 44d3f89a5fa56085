package notifier

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/bridge"
	"github.com/omni/bridge-orchestrator/logging"
)

const (
	DefaultExchange   = "bridge_events"
	publishTimeout    = 5 * time.Second
	progressKeyPrefix = "bridge.progress."
)

// RoutingKey maps a status to its topic, e.g. bridge.progress.waiting_attestation.
func RoutingKey(event *bridge.ProgressEvent) string {
	return progressKeyPrefix + strings.ToLower(string(event.Status))
}

// NewProgressObserver publishes every progress event to the exchange.
// Publish errors are logged and counted, they never reach the transfer.
func NewProgressObserver(publisher Publisher, exchange string, logger logging.Logger) bridge.Observer {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return func(ctx context.Context, event *bridge.ProgressEvent) {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		key := RoutingKey(event)
		if err := publisher.Publish(ctx, exchange, key, event); err != nil {
			PublishedEvents.WithLabelValues(key, "error").Inc()
			logger.WithError(err).WithFields(logrus.Fields{
				"transfer_id": event.TransferID,
				"status":      event.Status,
				"routing_key": key,
			}).Error("failed to publish progress event")
			return
		}
		PublishedEvents.WithLabelValues(key, "ok").Inc()
	}
}
