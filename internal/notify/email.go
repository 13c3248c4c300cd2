package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/prgate/prgate/internal/executor"
)

// SMTPConfig is the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders and sends approval emails.
type Mailer struct {
	config SMTPConfig
	send   SendFunc
	now    func() time.Time
}

// NewMailer returns a Mailer that sends through net/smtp.
func NewMailer(cfg SMTPConfig) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{config: cfg, send: smtp.SendMail, now: time.Now}
}

// WithSendFunc replaces the transport.
func (m *Mailer) WithSendFunc(fn SendFunc) *Mailer {
	m.send = fn
	return m
}

// EmailContent is a rendered approval email.
type EmailContent struct {
	Subject   string
	PlainText string
	HTML      string
}

var plainTemplate = texttemplate.Must(texttemplate.New("plain").Parse(`Approval required for {{.Repo}} PR #{{.PRNumber}}{{if .Title}} ({{.Title}}){{end}}

Risk level: {{.Level}}
Ticket: {{.TicketID}}
Request: {{.Request}}

{{.Analysis}}
{{if .ApproveURL}}
Approve: {{.ApproveURL}}
Reject:  {{.RejectURL}}
{{end}}
Or comment "approved" / "rejected" on the pull request.
`))

var htmlTemplate = template.Must(template.New("html").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Approval Required</title></head>
<body style="font-family: -apple-system, Segoe UI, Helvetica, Arial, sans-serif; color: #24292f;">
  <h2>Approval Required: {{.Level}} risk</h2>
  <p><strong>{{.Repo}}</strong> pull request #{{.PRNumber}}{{if .Title}}: {{.Title}}{{end}}</p>
  <p>Ticket: <code>{{.TicketID}}</code></p>
  <p>Request: {{.Request}}</p>
  <pre style="background: #f6f8fa; padding: 12px; white-space: pre-wrap;">{{.Analysis}}</pre>
  {{if .ApproveURL}}
  <p>
    <a href="{{.ApproveURL}}" style="background: #2da44e; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 6px;">Approve</a>
    &nbsp;
    <a href="{{.RejectURL}}" style="background: #cf222e; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 6px;">Reject</a>
  </p>
  {{end}}
  <p style="color: #57606a; font-size: 12px;">You can also comment "approved" or "rejected" on the pull request.</p>
</body>
</html>
`))

// RenderEmail renders the subject and both bodies of an approval email.
func RenderEmail(a executor.Approval) (EmailContent, error) {
	subject := fmt.Sprintf("[Approval Required] %s risk: %s PR #%d", a.Level, a.Repo, a.PRNumber)
	if a.Title != "" {
		subject += " " + a.Title
	}

	var plain bytes.Buffer
	if err := plainTemplate.Execute(&plain, a); err != nil {
		return EmailContent{}, fmt.Errorf("render plain text: %w", err)
	}
	var html bytes.Buffer
	if err := htmlTemplate.Execute(&html, a); err != nil {
		return EmailContent{}, fmt.Errorf("render html: %w", err)
	}

	return EmailContent{
		Subject:   truncate(subject, 100),
		PlainText: plain.String(),
		HTML:      html.String(),
	}, nil
}

// Send renders the approval and mails it to one recipient.
func (m *Mailer) Send(ctx context.Context, to string, a executor.Approval) error {
	if m.config.Host == "" || m.config.From == "" {
		return fmt.Errorf("smtp not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := RenderEmail(a)
	if err != nil {
		return err
	}
	msg, err := m.buildMessage(to, content)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	if err := m.send(addr, auth, m.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// buildMessage assembles a multipart/alternative MIME message.
func (m *Mailer) buildMessage(to string, content EmailContent) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for _, part := range []struct {
		contentType string
		text        string
	}{
		{"text/plain; charset=utf-8", content.PlainText},
		{"text/html; charset=utf-8", content.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, fmt.Errorf("create mime part: %w", err)
		}
		if _, err := w.Write([]byte(part.text)); err != nil {
			return nil, fmt.Errorf("write mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", content.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return []byte(msg.String()), nil
}
