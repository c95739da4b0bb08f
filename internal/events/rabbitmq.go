package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer publishes to a durable topic exchange. The channel is reopened
// once when a publish fails.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func NewProducer(amqpURL, exchange string, logger *slog.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("NewProducer: %w", err)
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("NewProducer: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewProducer: channel: %w", err)
	}

	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("NewProducer: %w", err)
	}

	return &Producer{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

func (p *Producer) PublishTransfer(ctx context.Context, msg TransferMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("PublishTransfer: marshal: %w", err)
	}
	routingKey := RoutingKey(msg.Status)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.publish(ctx, routingKey, msg.EventID.String(), body); err != nil {
		p.logger.Warn("publish failed, reopening channel",
			"exchange", p.exchange, "routing_key", routingKey, "error", err)

		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return fmt.Errorf("PublishTransfer: reopen channel: %w", errors.Join(err, chErr))
		}
		p.channel.Close()
		p.channel = ch
		if err := declareExchange(ch, p.exchange); err != nil {
			return fmt.Errorf("PublishTransfer: %w", err)
		}
		if err := p.publish(ctx, routingKey, msg.EventID.String(), body); err != nil {
			return fmt.Errorf("PublishTransfer: %w", err)
		}
	}
	return nil
}

func (p *Producer) publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NopPublisher drops every message. It stands in when no broker is configured.
type NopPublisher struct {
	Logger *slog.Logger
}

func (p NopPublisher) PublishTransfer(_ context.Context, msg TransferMessage) error {
	if p.Logger != nil {
		p.Logger.Debug("event publish skipped", "transfer_id", msg.TransferID, "routing_key", RoutingKey(msg.Status))
	}
	return nil
}

func (NopPublisher) Close() {}
