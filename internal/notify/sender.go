// Package notify delivers rating confirmations.  The RatingService only sees
// the Sender interface; depending on configuration the confirmation is
// mailed inline over SMTP, queued on RabbitMQ for the background consumer,
// or just logged.
package notify

import (
	"context"
	"errors"

	"github.com/wneessen/go-mail"

	"github.com/noseryoung/course-rating/internal/logging"
)

// ErrAddress is returned when the recipient address cannot be used.
var ErrAddress = errors.New("invalid recipient address")

// Sender delivers a confirmation containing the rating token to address.
type Sender interface {
	Send(ctx context.Context, address, token string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, address, token string) error

func (f SenderFunc) Send(ctx context.Context, address, token string) error {
	return f(ctx, address, token)
}

// LogSender only writes the confirmation to the log.
type LogSender struct {
	Log logging.Logger
}

func (s LogSender) Send(ctx context.Context, address, token string) error {
	if err := checkAddress(address); err != nil {
		return err
	}
	s.Log.Info(ctx, "rating confirmation", "to", address, "token", token)
	return nil
}

// checkAddress validates an RFC 5322 address the same way the SMTP path
// will, so bad input is rejected before it is queued.
func checkAddress(address string) error {
	if err := mail.NewMsg().To(address); err != nil {
		return errors.Join(ErrAddress, err)
	}
	return nil
}
