// Package email sends plain text mail through an SMTP relay.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	ModeSTARTTLS = "starttls"
	ModeTLS      = "tls"
	ModeNone     = "none"

	// sendTimeout bounds a whole delivery when the caller's context has no deadline.
	sendTimeout = 30 * time.Second
)

type Message struct {
	FromName  string
	FromEmail string
	ToEmail   string
	Subject   string
	TextBody  string
}

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLSMode is one of ModeSTARTTLS (default), ModeTLS or ModeNone.
	TLSMode string
}

func (s SMTPSettings) Mode() string {
	if s.TLSMode == "" {
		return ModeSTARTTLS
	}
	return s.TLSMode
}

func (s SMTPSettings) addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SendSMTP delivers msg over a fresh connection. The connection deadline
// follows ctx.
func SendSMTP(ctx context.Context, settings SMTPSettings, msg Message) error {
	client, err := dial(ctx, settings)
	if err != nil {
		return err
	}
	defer client.Close()

	if settings.Username != "" {
		auth := smtp.PlainAuth("", settings.Username, settings.Password, settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(msg.FromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := client.Rcpt(msg.ToEmail); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(msg.render(time.Now()))); err != nil {
		_ = wc.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	if err := client.Quit(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

func dial(ctx context.Context, settings SMTPSettings) (*smtp.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", settings.addr())
	if err != nil {
		return nil, fmt.Errorf("smtp dial: %w", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(sendTimeout)
	}
	_ = conn.SetDeadline(deadline)

	tlsConfig := &tls.Config{ServerName: settings.Host, MinVersion: tls.VersionTLS12}
	if settings.Mode() == ModeTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, settings.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if settings.Mode() == ModeSTARTTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}

func (m Message) from() string {
	if m.FromName == "" {
		return m.FromEmail
	}
	return fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail)
}

func (m Message) render(now time.Time) string {
	return BuildMessage(m.from(), m.ToEmail, m.Subject, m.TextBody, now)
}

// BuildMessage renders RFC 5322 headers and a text body. Header values are
// stripped of CR and LF.
func BuildMessage(from, to, subject, body string, date time.Time) string {
	clean := strings.NewReplacer("\r", "", "\n", "")
	from, to, subject = clean.Replace(from), clean.Replace(to), clean.Replace(subject)
	lines := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"Date: " + date.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		strings.ReplaceAll(body, "\n", "\r\n"),
	}
	return strings.Join(lines, "\r\n")
}
