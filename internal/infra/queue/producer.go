// Package queue publishes queue messages and domain events on a RabbitMQ
// topic exchange.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing key prefixes on the exchange.
const (
	messagePrefix = "message."
	eventPrefix   = "event."
)

// Producer publishes JSON messages to a durable topic exchange.
// It implements port.QueuePublisher and port.EventTrigger.
type Producer struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewProducer dials the broker and declares the exchange.
func NewProducer(amqpURL, exchange string, logger *zap.Logger) (*Producer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	p := &Producer{url: cleanURL, exchange: exchange, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Producer) connect() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn = conn
	p.channel = channel
	return nil
}

// Publish sends a named queue message (CreatePayables, AssignPortfolioToTransaction).
func (p *Producer) Publish(ctx context.Context, message string, payload any) error {
	return p.publish(ctx, messagePrefix+message, message, payload)
}

// Trigger raises a domain event with routing key event.<name>.
func (p *Producer) Trigger(ctx context.Context, ev *domain.DomainEvent) error {
	return p.publish(ctx, eventPrefix+ev.Name, ev.Name, ev)
}

func (p *Producer) publish(ctx context.Context, routingKey, msgType string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         msgType,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(ctx, routingKey, msg)
	if err != nil && errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn("broker channel closed, reconnecting", zap.String("exchange", p.exchange))
		p.closeLocked()
		if cerr := p.connect(); cerr != nil {
			return cerr
		}
		err = p.publishLocked(ctx, routingKey, msg)
	}
	if err != nil {
		return err
	}

	p.logger.Debug("published message",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", routingKey),
	)
	return nil
}

func (p *Producer) publishLocked(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if p.channel == nil || p.channel.IsClosed() {
		return amqp.ErrClosed
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close releases channel and connection resources.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Producer) closeLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
