package utils

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Email is one outbound message
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// EmailSender is the narrow transport contract the engine depends on. Send
// must honor the context deadline; a workflow run's wall-clock budget covers
// its dispatches too. The SMTP implementation below is the default; tests
// substitute their own.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// SMTPSender sends through a configured SMTP account via gomail
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	from := email.From
	if from == "" {
		from = s.from
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/html", email.Body)

	// The dialer has no deadline of its own, so a hung dial is abandoned at
	// the context deadline instead of blocking the caller.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", email.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send to %s aborted: %w", email.To, ctx.Err())
	}
}
