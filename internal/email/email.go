// Package email sends transactional mail through Resend.
package email

import (
	"fmt"
	"log/slog"

	"github.com/resendlabs/resend-go"
)

// Sender delivers one-time codes by email. A Sender with no API key is
// disabled; callers log the code instead of failing registration.
type Sender struct {
	client *resend.Client
	from   string
	logger *slog.Logger
}

// NewSender creates a Sender. An empty apiKey disables delivery.
func NewSender(apiKey, from string, logger *slog.Logger) *Sender {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}
	return &Sender{
		client: client,
		from:   from,
		logger: logger,
	}
}

// Enabled reports whether outbound mail is configured.
func (s *Sender) Enabled() bool {
	return s.client != nil
}

// SendVerificationCode emails the account verification code.
func (s *Sender) SendVerificationCode(to, code string) error {
	return s.send(to, "Verify your Open Always account", fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2 style="color: #333;">Verify your email</h2>
			<p>Your verification code is:</p>
			<div style="background-color: #f4f4f4; padding: 20px; text-align: center; font-size: 32px; font-weight: bold; letter-spacing: 8px; margin: 20px 0;">
				%s
			</div>
			<p style="color: #666;">This code will expire in 10 minutes.</p>
			<p style="color: #666;">If you didn't create an account, please ignore this email.</p>
			<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
			<p style="color: #999; font-size: 12px;">Open Always - Free AI API Access</p>
		</div>
	`, code))
}

// SendResetCode emails the password reset code.
func (s *Sender) SendResetCode(to, code string) error {
	return s.send(to, "Reset your Open Always password", fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2 style="color: #333;">Password reset</h2>
			<p>Your password reset code is:</p>
			<div style="background-color: #f4f4f4; padding: 20px; text-align: center; font-size: 32px; font-weight: bold; letter-spacing: 8px; margin: 20px 0;">
				%s
			</div>
			<p style="color: #666;">This code will expire in 10 minutes.</p>
			<p style="color: #666;">If you didn't request a reset, please ignore this email.</p>
			<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
			<p style="color: #999; font-size: 12px;">Open Always - Free AI API Access</p>
		</div>
	`, code))
}

func (s *Sender) send(to, subject, html string) error {
	if s.client == nil {
		s.logger.Warn("email delivery disabled, code not sent",
			slog.String("to", to),
			slog.String("subject", subject),
		)
		return nil
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}

	if _, err := s.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
