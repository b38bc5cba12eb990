package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/lifeblood-api/internal/config"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
)

type Service interface {
	SendNotification(ctx context.Context, to, subject, body string) error
}

// dialer is satisfied by *gomail.Dialer.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	from   string
	dialer dialer
	logger *logger.Logger
}

// NewService returns an SMTP-backed mailer, or a no-op one when email is
// disabled in config.
func NewService(cfg config.EmailConfig, log *logger.Logger) Service {
	if !cfg.Enabled {
		return nopService{}
	}
	return &smtpService{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: log,
	}
}

func (s *smtpService) SendNotification(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Debug("Email sent", "to", to, "subject", subject)
	return nil
}

type nopService struct{}

func (nopService) SendNotification(context.Context, string, string, string) error { return nil }
