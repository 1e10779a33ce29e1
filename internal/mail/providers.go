package mail

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/resend/resend-go/v2"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

type sendGridService struct {
	client *sendgrid.Client
	from   *sgmail.Email
	log    *zap.Logger
}

func newSendGrid(cfg Config, log *zap.Logger) *sendGridService {
	from := &sgmail.Email{Address: cfg.From}
	if addr, err := mail.ParseAddress(cfg.From); err == nil {
		from = sgmail.NewEmail(addr.Name, addr.Address)
	}
	return &sendGridService{client: sendgrid.NewSendClient(cfg.APIKey), from: from, log: log}
}

func (s *sendGridService) SendMail(ctx context.Context, opts Options) error {
	msg := sgmail.NewSingleEmail(s.from, opts.Subject, sgmail.NewEmail("", opts.Recipient), "", opts.HTMLBody)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("mail.sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail.sendgrid: status %d", resp.StatusCode)
	}
	s.log.Debug("mail sent", zap.String("provider", "sendgrid"), zap.Int("status", resp.StatusCode))
	return nil
}

type resendService struct {
	client *resend.Client
	from   string
	log    *zap.Logger
}

func newResend(cfg Config, log *zap.Logger) *resendService {
	return &resendService{client: resend.NewClient(cfg.APIKey), from: cfg.From, log: log}
}

func (s *resendService) SendMail(ctx context.Context, opts Options) error {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{opts.Recipient},
		Subject: opts.Subject,
		Html:    opts.HTMLBody,
	})
	if err != nil {
		return fmt.Errorf("mail.resend: %w", err)
	}
	s.log.Debug("mail sent", zap.String("provider", "resend"), zap.String("id", sent.Id))
	return nil
}
