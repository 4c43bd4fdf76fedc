package service

import (
	"context"
	"fmt"
	"strings"

	"thumbforge/internal/email"
)

// EmailService delivers password reset links over SMTP.
type EmailService struct {
	Settings  email.SMTPSettings
	FromName  string
	FromEmail string
	// Send defaults to email.SendSMTP.
	Send func(context.Context, email.SMTPSettings, email.Message) error
}

func (s *EmailService) SendPasswordReset(ctx context.Context, toEmail, resetURL string) error {
	if s == nil || s.Settings.Host == "" {
		return fmt.Errorf("smtp not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	send := s.Send
	if send == nil {
		send = email.SendSMTP
	}

	body := strings.Join([]string{
		"You requested a password reset.",
		"",
		"Reset your password using this link. It expires shortly and works once:",
		resetURL,
		"",
		"If you did not request this, you can ignore this email.",
	}, "\n")

	return send(ctx, s.Settings, email.Message{
		FromName:  s.FromName,
		FromEmail: s.FromEmail,
		ToEmail:   toEmail,
		Subject:   "Reset your Thumbforge password",
		TextBody:  body,
	})
}
