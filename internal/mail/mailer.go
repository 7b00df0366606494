package mail

import (
	"fmt"

	"github.com/mpetrenko/auth-backend/internal/config"
	"gopkg.in/gomail.v2"
)

// Sender delivers account emails. The workflow core depends on this
// interface so tests can stub delivery.
type Sender interface {
	SendVerification(toEmail, token string) error
}

// SMTPSender sends verification emails through an SMTP relay.
type SMTPSender struct {
	dialer  *gomail.Dialer
	from    string
	baseURL string
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	return &SMTPSender{
		dialer:  gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:    cfg.MailFrom,
		baseURL: cfg.BaseURL,
	}
}

func (s *SMTPSender) SendVerification(toEmail, token string) error {
	link := fmt.Sprintf("%s/api/users/verify/%s", s.baseURL, token)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Verify your email")
	m.SetBody("text/html", fmt.Sprintf(
		`<p>Welcome! Please confirm your email address.</p>
<p><a target="_blank" href="%s">Click to verify your email</a></p>`, link))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}
