// Package rabbitmq delivers outbox entries to a topic exchange. The routing
// key is the event type, so downstream consumers can bind selectively
// (chat.*, operator.status_changed, ...).
package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
)

// envelope is the wire format posted to the exchange.
type envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Publisher posts notifications to a durable topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *zap.Logger
}

func New(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Publish posts one outbox entry as a persistent message. The message id is
// the event id, giving downstream consumers their own dedup handle.
func (p *Publisher) Publish(ctx context.Context, entry domain.OutboxEntry) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(envelope{
		EventID:       entry.ID,
		EventType:     string(entry.EventType),
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		OccurredAt:    entry.CreatedAt,
		Payload:       entry.Payload,
	})
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, string(entry.EventType), false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    entry.ID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err == nil {
		p.logger.Debug("notification published",
			zap.String("routing_key", string(entry.EventType)),
			zap.String("event_id", entry.ID))
	}
	return err
}

// Close closes the underlying connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
