package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gradportal/internal/config"
)

// MailConfig configures the SMTP mailer.
type MailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Timeout    time.Duration
	EventTitle string
	EventDate  string
	PortalURL  string
}

// MailConfigFrom assembles a MailConfig from application settings.
func MailConfigFrom(cfg config.App) MailConfig {
	return MailConfig{
		Host:       cfg.Notify.SMTPHost,
		Port:       cfg.Notify.SMTPPort,
		Username:   cfg.Notify.SMTPUser,
		Password:   cfg.Notify.SMTPPass,
		From:       cfg.Notify.From,
		FromName:   cfg.Notify.FromName,
		Timeout:    cfg.Notify.Timeout,
		EventTitle: cfg.GatePass.EventTitle,
		EventDate:  cfg.GatePass.EventDate,
		PortalURL:  cfg.Notify.PortalURL,
	}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends confirmation emails through an SMTP relay. smtp.SendMail
// upgrades to STARTTLS whenever the server offers it.
type Mailer struct {
	cfg  MailConfig
	send sendFunc
	now  func() time.Time
}

// NewMailer creates a mailer.
func NewMailer(cfg MailConfig) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Mailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Send delivers n, giving up after the configured timeout. A send abandoned
// on timeout may still complete in the background.
func (m *Mailer) Send(ctx context.Context, n Notice) error {
	msg, err := m.Build(n)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.cfg.From, []string{n.To}, msg)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("smtp %s: %w", addr, ctx.Err())
	}
}

// Build renders the full RFC 5322 message with text and HTML alternatives.
func (m *Mailer) Build(n Notice) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(m.textBody(n))); err != nil {
		return nil, err
	}

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(m.htmlBody(n))); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.From)
	}
	domain := "localhost"
	if at := strings.LastIndex(m.cfg.From, "@"); at >= 0 {
		domain = m.cfg.From[at+1:]
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", n.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.subject()))
	fmt.Fprintf(&msg, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func (m *Mailer) subject() string {
	title := m.cfg.EventTitle
	if title == "" {
		title = "Graduation Day"
	}
	return title + " - Registration Successful"
}

func (m *Mailer) attendanceLine(n Notice) string {
	if !n.Attending {
		return "Not attending"
	}
	return fmt.Sprintf("Attending with %d guest(s)", n.GuestCount)
}

func (m *Mailer) textBody(n Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\r\n\r\n", n.Name)
	fmt.Fprintf(&b, "Your registration for %s is complete.\r\n\r\n", m.cfg.EventTitle)
	fmt.Fprintf(&b, "Reference ID: %s\r\n", n.ReferenceID)
	fmt.Fprintf(&b, "Roll number: %s\r\n", n.RollNo)
	fmt.Fprintf(&b, "Branch: %s\r\n", n.Branch)
	fmt.Fprintf(&b, "Attendance: %s\r\n", m.attendanceLine(n))
	fmt.Fprintf(&b, "Registered on: %s\r\n", n.RegisteredAt.Format("02 January 2006"))
	if m.cfg.EventDate != "" {
		fmt.Fprintf(&b, "Event date: %s\r\n", m.cfg.EventDate)
	}
	b.WriteString("\r\nKeep your reference ID safe and download your gate pass from the portal")
	if m.cfg.PortalURL != "" {
		fmt.Fprintf(&b, ": %s", m.cfg.PortalURL)
	}
	b.WriteString("\r\n")
	return b.String()
}

func (m *Mailer) htmlBody(n Notice) string {
	esc := html.EscapeString
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;color:#333">`)
	fmt.Fprintf(&b, `<h2>%s</h2>`, esc(m.subject()))
	fmt.Fprintf(&b, `<p>Dear <strong>%s</strong>,</p>`, esc(n.Name))
	fmt.Fprintf(&b, `<p>Your registration for %s is complete.</p>`, esc(m.cfg.EventTitle))
	b.WriteString(`<table cellpadding="6" style="border-collapse:collapse">`)
	row := func(k, v string) {
		fmt.Fprintf(&b, `<tr><td><strong>%s</strong></td><td>%s</td></tr>`, esc(k), esc(v))
	}
	row("Reference ID", n.ReferenceID)
	row("Roll number", n.RollNo)
	row("Branch", n.Branch)
	row("Attendance", m.attendanceLine(n))
	row("Registered on", n.RegisteredAt.Format("02 January 2006"))
	if m.cfg.EventDate != "" {
		row("Event date", m.cfg.EventDate)
	}
	b.WriteString(`</table>`)
	b.WriteString(`<p>Keep your reference ID safe and download your gate pass from the portal`)
	if m.cfg.PortalURL != "" {
		fmt.Fprintf(&b, `: <a href="%s">%s</a>`, esc(m.cfg.PortalURL), esc(m.cfg.PortalURL))
	}
	b.WriteString(`.</p></body></html>`)
	return b.String()
}
