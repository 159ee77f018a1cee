// Package mailer sends rendered templates over SMTP.
package mailer

import (
	"dumbo/pkg/config"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

var ErrNoHost = errors.New("smtp host is not configured")

type Mailer struct {
	cfg  config.SMTPConfig
	dial func() (gomail.SendCloser, error)
}

func New(cfg config.SMTPConfig) *Mailer {
	m := &Mailer{cfg: cfg}
	m.dial = func() (gomail.SendCloser, error) {
		if m.cfg.Host == "" {
			return nil, ErrNoHost
		}
		return gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Password).Dial()
	}
	return m
}

// From falls back to the SMTP user and then to a placeholder address when
// no sender is configured.
func (m *Mailer) From() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	if m.cfg.User != "" {
		return m.cfg.User
	}
	return "noreply@example.com"
}

// Message builds the mail for a rendered body. Bodies that look like HTML
// are sent as text/html.
func (m *Mailer) Message(to, subject, body string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From())
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)

	if isHTML(body) {
		msg.SetBody("text/html", body)
	} else {
		msg.SetBody("text/plain", body)
	}
	return msg
}

func (m *Mailer) Send(to, subject, body string) error {
	if to == "" {
		return errors.New("missing recipient")
	}

	sender, err := m.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	defer sender.Close()

	if err := gomail.Send(sender, m.Message(to, subject, body)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func isHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">")
}
