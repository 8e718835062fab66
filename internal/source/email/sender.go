package email

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/nhle/threadmail/internal/account"
	"github.com/nhle/threadmail/internal/source"
)

// SMTPSender delivers composed messages through an SMTP account.
type SMTPSender struct {
	acc *account.Account
}

// NewSMTPSender creates a sender for acc.
func NewSMTPSender(acc *account.Account) *SMTPSender {
	return &SMTPSender{acc: acc}
}

// Send transmits msg over a fresh connection.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	addr := s.acc.Addr()

	conn, err := dial(ctx, s.acc)
	if err != nil {
		return fmt.Errorf("connecting to SMTP %s: %w", addr, err)
	}
	if s.acc.Channel == account.ChannelSSL {
		conn = tls.Client(conn, tlsConfig(s.acc))
	}

	c, err := smtp.NewClient(conn, s.acc.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting SMTP %s: %w", addr, err)
	}
	defer c.Close()

	if name := s.acc.Property(account.PropLocalName, ""); name != "" {
		if err := c.Hello(name); err != nil {
			return fmt.Errorf("sending HELO to %s: %w", addr, err)
		}
	}

	if s.acc.Channel == account.ChannelStartTLS {
		if err := c.StartTLS(tlsConfig(s.acc)); err != nil {
			return fmt.Errorf("starting TLS with %s: %w", addr, err)
		}
	}

	if s.acc.User != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := sasl.NewPlainClient("", s.acc.User, s.acc.Password)
			if err := c.Auth(auth); err != nil {
				return &source.AuthError{
					Protocol: source.ProtocolSMTP,
					Message:  fmt.Sprintf("authentication failed for %s: %v", s.acc.User, err),
				}
			}
		}
	}

	from := msg.From
	if from == "" {
		from = s.acc.From
	}
	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM %s: %w", from, err)
	}
	for _, to := range msg.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", to, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("starting DATA: %w", err)
	}
	if _, err := w.Write(msg.Data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing message %s: %w", msg.ID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message %s: %w", msg.ID, err)
	}

	return c.Quit()
}
