package channel

import (
	"context"
	"fmt"

	"reachflow/models"

	"github.com/badoux/checkmail"
	"gopkg.in/gomail.v2"
)

// SMTPSender sends email over the tenant's SMTP credentials using gomail.
// With UseFallback set it reads the tenant's fallback credential block instead,
// so the same type serves as both the primary and the secondary provider.
type SMTPSender struct {
	UseFallback bool
}

func NewSMTPSender() *SMTPSender {
	return &SMTPSender{}
}

func NewFallbackSMTPSender() *SMTPSender {
	return &SMTPSender{UseFallback: true}
}

func (s *SMTPSender) SendEmail(ctx context.Context, tenant *models.Tenant, msg EmailMessage) error {
	if err := checkmail.ValidateFormat(msg.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}

	host, port, username, password := tenant.SMTPHost, tenant.SMTPPort, tenant.SMTPUsername, tenant.SMTPPassword
	if s.UseFallback {
		host, port, username, password = tenant.FallbackSMTPHost, tenant.FallbackSMTPPort,
			tenant.FallbackSMTPUsername, tenant.FallbackSMTPPassword
	}
	if host == "" {
		return fmt.Errorf("no SMTP host configured for tenant %d", tenant.ID)
	}
	if port == 0 {
		port = 587
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s>", msg.MessageID))
	m.SetBody("text/html", msg.Body)

	d := gomail.NewDialer(host, port, username, password)

	// gomail has no context support; run the dial+send on the side so the
	// registry timeout still bounds the call.
	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}
}
