// Package mail composes and delivers the service's outgoing emails.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gomail "github.com/wneessen/go-mail"

	"pressiotrack/internal/config"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPSender struct {
	client *gomail.Client
	from   string
}

func NewSMTPSender(cfg config.Mail) (*SMTPSender, error) {
	const op = "mail.NewSMTPSender"

	var opts []gomail.Option
	if cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	opts = append(opts, gomail.WithPort(cfg.Port), gomail.WithTimeout(cfg.SendTimeout))

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &SMTPSender{client: client, from: cfg.From}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	const op = "mail.Send"

	m := gomail.NewMsg()
	if err := m.FromFormat("PressioTrack", s.from); err != nil {
		return fmt.Errorf("%s: from: %w", op, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("%s: to: %w", op, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LogSender writes messages to the log instead of delivering them. Used
// when no SMTP host is configured; it also keeps what it sent.
type LogSender struct {
	log *slog.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	s.log.Info("email not delivered, smtp disabled",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)

	return nil
}

func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
