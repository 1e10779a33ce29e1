package mail

import (
	"context"
	"fmt"
	"net/mail"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type smtpService struct {
	host string
	port int
	from string
	log  *zap.Logger
	send func(ctx context.Context, msg *gomail.Msg) error
}

func newSMTP(cfg Config, log *zap.Logger) (*smtpService, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("mail.New: smtp requires MAIL_SMTP_HOST")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("mail.New: invalid MAIL_FROM: %w", err)
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUser),
			gomail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail.New: smtp client: %w", err)
	}

	return &smtpService{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		from: from.String(),
		log:  log,
		send: func(ctx context.Context, msg *gomail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (s *smtpService) SendMail(ctx context.Context, opts Options) error {
	msg, err := s.message(opts)
	if err != nil {
		return fmt.Errorf("mail.smtp: %w", err)
	}
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("mail.smtp: %w", err)
	}
	s.log.Debug("mail sent", zap.String("provider", "smtp"), zap.String("host", s.host), zap.Int("port", s.port))
	return nil
}

func (s *smtpService) message(opts Options) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, err
	}
	if err := msg.To(opts.Recipient); err != nil {
		return nil, err
	}
	msg.Subject(opts.Subject)
	msg.SetDate()
	msg.SetBodyString(gomail.TypeTextHTML, opts.HTMLBody)
	return msg, nil
}
