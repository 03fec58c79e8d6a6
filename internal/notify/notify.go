// Package notify sends the project-ready completion email.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
)

// Defaults for the Nextraction sender identity.
const (
	DefaultHost         = "smtp.zoho.com"
	DefaultPort         = 465
	DefaultSender       = "contact@nextraction.io"
	DefaultSenderName   = "Nextraction Team"
	DefaultDashboardURL = "https://nextraction.io/dashboard"
)

// Config holds SMTP connection and sender settings. Zero-valued fields fall
// back to the Nextraction defaults; only Password has no default.
type Config struct {
	Host         string
	Port         int
	Sender       string
	SenderName   string
	Password     string
	DashboardURL string
}

// Mailer sends completion notices over SMTP with implicit TLS.
type Mailer struct {
	config Config
}

// NewMailer creates a Mailer, applying defaults for unset config fields.
func NewMailer(config Config) *Mailer {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Sender == "" {
		config.Sender = DefaultSender
	}
	if config.SenderName == "" {
		config.SenderName = DefaultSenderName
	}
	if config.DashboardURL == "" {
		config.DashboardURL = DefaultDashboardURL
	}
	return &Mailer{config: config}
}

// SendProjectReady emails the project owner that their analysis is ready.
func (m *Mailer) SendProjectReady(ctx context.Context, recipient, projectName string) error {
	if m.config.Password == "" {
		return fmt.Errorf("smtp password is not configured")
	}

	message, err := m.buildMessage(recipient, projectName)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	dialer := &tls.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.config.Sender, m.config.Password, m.config.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	if err := client.Mail(m.config.Sender); err != nil {
		return fmt.Errorf("smtp MAIL failed: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp RCPT failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

// buildMessage renders the multipart/alternative notice with a plain-text
// part and an HTML part carrying the dashboard link.
func (m *Mailer) buildMessage(recipient, projectName string) (string, error) {
	var body strings.Builder
	mw := multipart.NewWriter(&body)

	text := fmt.Sprintf(`Hello,

Your project "%s" has been successfully analyzed and is ready for you to explore.

Visit your project dashboard:
%s

Thank you for choosing Nextraction!

Best regards,
%s
`, projectName, m.config.DashboardURL, m.config.SenderName)

	html := fmt.Sprintf(`<html>
  <body style="font-family:Arial,sans-serif; color:#333; line-height:1.4;">
    <p>Hello,</p>
    <p>Your project <strong>&ldquo;%s&rdquo;</strong> has been successfully analyzed and is now ready for you to explore.</p>
    <p><a href="%s"
        style="background-color:#007BFF; color:white; padding:12px 20px;
               text-decoration:none; border-radius:4px;
               display:inline-block; font-size:16px;">
         View Your Dashboard
    </a></p>
    <p>Thank you for choosing Nextraction.</p>
    <p>Best regards,<br>%s</p>
  </body>
</html>`, projectName, m.config.DashboardURL, m.config.SenderName)

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return "", err
		}
		if _, err := pw.Write([]byte(part.content)); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	headers := fmt.Sprintf(
		"From: %s <%s>\r\nTo: %s\r\nSubject: Your Nextraction Project \"%s\" Is Ready!\r\nMIME-Version: 1.0\r\nContent-Type: multipart/alternative; boundary=%s\r\n\r\n",
		m.config.SenderName, m.config.Sender, recipient, projectName, mw.Boundary(),
	)
	return headers + body.String(), nil
}
