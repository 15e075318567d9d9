package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Logger is the subset of the process logger the queue code writes to.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Publisher sends ledger events to RabbitMQ. It dials per publish; ledger
// mutations are admin actions and far too rare to justify a pooled
// channel.
type Publisher struct {
	url string
	log Logger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, logger Logger) *Publisher {
	return &Publisher{url: url, log: logger}
}

// Publish marshals ev and publishes it to QueueName as a persistent
// message. Errors are logged and returned; callers treat them as
// non-fatal because the ledger write has already committed.
func (p *Publisher) Publish(ctx context.Context, ev LedgerEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Errorf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Errorf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch); err != nil {
		p.log.Errorf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", QueueName, false, false, pub); err != nil {
		p.log.Errorf("rabbitmq: publish %s failed: %v", ev.Type, err)
		return err
	}
	return nil
}

func declare(ch *amqp.Channel) (amqp.Queue, error) {
	return ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
}

// Discard drops every event. It is used when EVENTS_ENABLED is off.
type Discard struct{}

func (Discard) Publish(context.Context, LedgerEvent) error { return nil }
