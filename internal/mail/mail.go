// Package mail sends account mail through the delivery service chosen at startup.
package mail

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"
)

type Options struct {
	Subject   string
	Recipient string
	HTMLBody  string
}

type Service interface {
	SendMail(ctx context.Context, opts Options) error
}

type Config struct {
	Service      string `env:"SERVICE" envDefault:"log"`
	From         string `env:"FROM" envDefault:"Dungeon Club <noreply@dungeon.club>"`
	APIKey       string `env:"API_KEY"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
}

// New resolves the configured delivery service once.
func New(cfg Config, log *zap.Logger) (Service, error) {
	log = log.Named("mail")
	switch strings.ToLower(cfg.Service) {
	case "sendgrid":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("mail.New: sendgrid requires MAIL_API_KEY")
		}
		return newSendGrid(cfg, log), nil
	case "resend":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("mail.New: resend requires MAIL_API_KEY")
		}
		return newResend(cfg, log), nil
	case "gmail":
		cfg.SMTPHost, cfg.SMTPPort = "smtp.gmail.com", 587
		return newSMTP(cfg, log)
	case "smtp":
		return newSMTP(cfg, log)
	case "log", "":
		return &logService{log: log}, nil
	default:
		return nil, fmt.Errorf("mail.New: unsupported mail service %q", cfg.Service)
	}
}

func Welcome(recipient string) Options {
	return Options{
		Subject:   "Welcome to Dungeon Club",
		Recipient: recipient,
		HTMLBody: fmt.Sprintf(
			"<h1>Welcome, adventurer!</h1><p>Your account <b>%s</b> is ready. Create a campaign or join one to get started.</p>",
			html.EscapeString(recipient),
		),
	}
}

// logService writes mail to the log instead of delivering it.
type logService struct {
	log *zap.Logger
}

func (s *logService) SendMail(_ context.Context, opts Options) error {
	s.log.Info("mail not delivered",
		zap.String("recipient", opts.Recipient),
		zap.String("subject", opts.Subject),
	)
	return nil
}
