package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/logging"
)

const dialTimeout = 10 * time.Second

var ErrInvalidURL = errors.New("invalid amqp url")

// Publisher sends JSON encoded events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

type EventProducer struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  logging.Logger
}

func NewEventProducer(rawURL string, logger logging.Logger) (*EventProducer, error) {
	cleanURL, err := SanitizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("can't dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("can't open rabbitmq channel: %w", err)
	}
	return &EventProducer{
		conn:    conn,
		channel: ch,
		logger:  logger.WithField("component", "rabbitmq_producer"),
	}, nil
}

// SanitizeURL strips quotes and stray prefixes left by env files and
// accepts only amqp and amqps schemes.
func SanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", fmt.Errorf("%w: scheme must be amqp or amqps", ErrInvalidURL)
	}
	return clean, nil
}

// Publish declares the durable topic exchange and publishes body as JSON.
// A failed channel is reopened once before giving up.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("can't marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, exchange, routingKey, payload)
	if err == nil {
		return nil
	}
	p.logger.WithError(err).WithFields(logrus.Fields{
		"exchange":    exchange,
		"routing_key": routingKey,
	}).Warn("publish failed, reopening channel")

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("can't reopen rabbitmq channel: %w", chErr)
	}
	p.channel.Close()
	p.channel = ch
	return p.publish(ctx, exchange, routingKey, payload)
}

func (p *EventProducer) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("can't declare exchange %s: %w", exchange, err)
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// LogPublisher is used when no broker is configured. Events are only logged.
type LogPublisher struct {
	logger logging.Logger
}

func NewLogPublisher(logger logging.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.WithField("component", "log_publisher")}
}

func (p *LogPublisher) Publish(_ context.Context, exchange, routingKey string, body interface{}) error {
	p.logger.WithFields(logrus.Fields{
		"exchange":    exchange,
		"routing_key": routingKey,
		"event":       body,
	}).Debug("event publish skipped, broker is not configured")
	return nil
}

func (p *LogPublisher) Close() {}
