package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/noseryoung/course-rating/internal/logging"
)

const maxBackoff = 30 * time.Second

// Consumer drains the confirmation queue and hands each event to a Sender
// (normally the SMTPSender).
type Consumer struct {
	url    string
	queue  string
	sender Sender
	log    logging.Logger
}

func NewConsumer(url, queue string, sender Sender, log logging.Logger) *Consumer {
	return &Consumer{url: url, queue: queue, sender: sender, log: log.With("component", "confirmation-consumer")}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn(ctx, "dial broker failed", "err", err, "retry_in", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn(ctx, "consume loop ended, reconnecting", "err", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.log.Warn(ctx, "set QoS failed", "err", err)
	}
	if err := declareQueue(ch, c.queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			ack, requeue := c.disposition(c.handle(ctx, d.Body), d.Redelivered)
			if ack {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, requeue)
			}
		}
	}
}

// handle decodes one message and sends the mail.
func (c *Consumer) handle(ctx context.Context, body []byte) error {
	ev, err := decodeEvent(body)
	if err != nil {
		return err
	}
	if err := c.sender.Send(ctx, ev.Email, ev.Token); err != nil {
		return err
	}
	c.log.Info(ctx, "confirmation sent", "to", ev.Email, "token", ev.Token)
	return nil
}

// disposition decides what to do with a delivery after handle.  Bad input
// is dropped; a transport failure gets one redelivery.
func (c *Consumer) disposition(err error, redelivered bool) (ack, requeue bool) {
	if err == nil {
		return true, false
	}
	if errors.Is(err, ErrAddress) || errors.Is(err, errMalformed) {
		c.log.Warn(context.Background(), "dropping confirmation", "err", err)
		return false, false
	}
	c.log.Warn(context.Background(), "confirmation delivery failed", "err", err, "redelivered", redelivered)
	return false, !redelivered
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
