package client

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"storefront-payments/internal/config"
)

type MailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(msg *MailMessage) error
}

type smtpMailer struct {
	dialer  *gomail.Dialer
	from    string
	replyTo string
}

func NewMailer(cfg *config.SMTP) Mailer {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &smtpMailer{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:    from,
		replyTo: cfg.ReplyTo,
	}
}

func (m *smtpMailer) Send(msg *MailMessage) error {
	mail := gomail.NewMessage()
	mail.SetHeader("From", m.from)
	mail.SetHeader("To", msg.To)
	if m.replyTo != "" {
		mail.SetHeader("Reply-To", m.replyTo)
	}
	mail.SetHeader("Subject", msg.Subject)
	mail.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		mail.AddAlternative("text/html", msg.HTML)
	}

	if err := m.dialer.DialAndSend(mail); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}
