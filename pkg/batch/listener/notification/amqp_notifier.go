package notification

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
	"github.com/tigerroll/statreg/pkg/batch/support/util/serialization"
)

const moduleName = "notification"

// Publisher is the part of *amqp.Channel the notifier needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes each JobSummary as a persistent JSON message.
type AMQPNotifier struct {
	publisher  Publisher
	exchange   string
	routingKey string
}

// NewAMQPNotifier creates a notifier over an open channel.
func NewAMQPNotifier(publisher Publisher, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher, exchange: exchange, routingKey: routingKey}
}

// DialAMQP connects to the broker, opens a channel and declares the durable
// topic exchange. The returned close function releases both.
func DialAMQP(cfg config.AMQPConfig) (*amqp.Channel, func() error, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
		}
	}
	closeFn := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return ch, closeFn, nil
}

// NotifyJobCompletion publishes the summary.
func (n *AMQPNotifier) NotifyJobCompletion(ctx context.Context, summary model.JobSummary) error {
	body, err := serialization.Marshal(moduleName, summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary of job %s: %w", summary.JobID, err)
	}
	err = n.publisher.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    summary.JobID,
		Type:         string(summary.Status),
		Timestamp:    summary.EndedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish summary of job %s: %w", summary.JobID, err)
	}
	return nil
}

var _ ports.Notifier = (*AMQPNotifier)(nil)
