package notify

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/noseryoung/course-rating/internal/logging"
)

// Publisher queues confirmations on RabbitMQ.  A connection is opened per
// message; rating submissions are rare enough that pooling is not needed.
type Publisher struct {
	url   string
	queue string
	log   logging.Logger
	now   func() time.Time
}

func NewPublisher(url, queue string, log logging.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, log: log, now: time.Now}
}

// Send validates the address and publishes a persistent ConfirmationEvent.
func (p *Publisher) Send(ctx context.Context, address, token string) error {
	if err := checkAddress(address); err != nil {
		return err
	}
	body, err := encodeEvent(address, token, p.now())
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareQueue(ch, p.queue); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	p.log.Debug(ctx, "confirmation queued", "queue", p.queue, "token", token)
	return nil
}

// declareQueue is idempotent; the queue is durable so messages survive a
// broker restart.
func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", name, err)
	}
	return nil
}
