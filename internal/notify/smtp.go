package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/noseryoung/course-rating/internal/config"
)

// SMTPSender mails the confirmation directly.
type SMTPSender struct {
	cfg config.MailConfig
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send builds and delivers one message.  Address problems are reported as
// ErrAddress; anything else is a transport error.
func (s *SMTPSender) Send(ctx context.Context, address, token string) error {
	msg, err := s.message(address, token)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.cfg.SMTPHost, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(address, token string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("sender address %q: %w", s.cfg.From, err)
	}
	if err := msg.To(address); err != nil {
		return nil, errors.Join(ErrAddress, err)
	}
	msg.Subject(s.cfg.Subject)
	msg.SetBodyString(mail.TypeTextPlain, confirmationBody(token))
	return msg, nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.cfg.SMTPPort)}
	if s.cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.SMTPUser),
			mail.WithPassword(s.cfg.SMTPPass))
	}
	if s.cfg.SMTPTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	return opts
}

func confirmationBody(token string) string {
	return "Thank you for rating your course.\n\n" +
		"Keep this reference if you want to change your rating later:\n\n" +
		"    " + token + "\n"
}
