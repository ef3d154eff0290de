package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/config"
)

const exchangeName = "notification_events"

// AMQPNotifier publishes notification events to a durable topic exchange. The
// routing key is "notifications.<event_type>" so downstream consumers can bind
// selectively.
type AMQPNotifier struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *slog.Logger
}

type notificationMessage struct {
	UserID    string         `json:"user_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewAMQPNotifier(cfg config.NotifyConfig, logger *slog.Logger) (*AMQPNotifier, error) {
	conn, err := amqp091.DialConfig(cfg.AMQPURL, amqp091.Config{
		Dial: amqp091.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPNotifier{conn: conn, channel: ch, logger: logger}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, userID, eventType string, payload map[string]any) error {
	body, err := json.Marshal(notificationMessage{
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	routingKey := "notifications." + eventType

	err = n.channel.PublishWithContext(ctx,
		exchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		// One-shot retry on a fresh channel; broker restarts invalidate the old one.
		ch, chErr := n.conn.Channel()
		if chErr != nil {
			return err
		}
		n.channel = ch
		if exErr := n.channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); exErr != nil {
			return err
		}
		return n.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		})
	}
	return nil
}

func (n *AMQPNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}

// NopNotifier drops every notification, used when the broker is unavailable
// at startup so payment processing keeps working.
type NopNotifier struct {
	logger *slog.Logger
}

func NewNopNotifier(logger *slog.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) Notify(_ context.Context, userID, eventType string, _ map[string]any) error {
	n.logger.Warn("notification dropped, broker unavailable", "user_id", userID, "event_type", eventType)
	return nil
}

var (
	_ application.Notifier = (*AMQPNotifier)(nil)
	_ application.Notifier = (*NopNotifier)(nil)
)
