// Package mail sends outreach over SMTP and reads replies from an IMAP inbox.
package mail

import (
	"context"
	"fmt"
	"html"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/config"
)

// Sender delivers a single plain-text email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender delivers mail through an authenticated SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration

	fromName  string
	fromEmail string
}

// NewSMTPSender creates a sender from the SMTP and sender sections.
func NewSMTPSender(smtp config.SMTPConfig, from config.SenderConfig) (*SMTPSender, error) {
	if smtp.Host == "" {
		return nil, apperr.Validation("mail.new_smtp", "smtp.host is required")
	}
	if from.Email == "" {
		return nil, apperr.Validation("mail.new_smtp", "sender.email is required")
	}
	timeout := time.Duration(smtp.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	port := smtp.Port
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:      smtp.Host,
		port:      port,
		username:  smtp.Username,
		password:  smtp.Password,
		timeout:   timeout,
		fromName:  from.Name,
		fromEmail: from.Email,
	}, nil
}

// Send builds a multipart message (plain text with an HTML alternative) and
// delivers it. Any failure is a KindDelivery error.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg, err := s.message(to, subject, body)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.timeout),
		gomail.WithDialContextFunc(func(dctx context.Context, network, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, network, addr)
		}),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindDelivery, "mail.smtp_client", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return apperr.Wrap(apperr.KindDelivery, "mail.smtp_send", err)
	}

	zap.L().Debug("mail: sent",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}

func (s *SMTPSender) message(to, subject, body string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return nil, apperr.Wrap(apperr.KindDelivery, "mail.smtp_from", err)
	}
	if err := msg.To(to); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "mail.smtp_to", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)
	msg.AddAlternativeString(gomail.TypeTextHTML, TextToHTML(body))
	return msg, nil
}

// TextToHTML renders a plain-text body as minimal HTML: paragraphs on blank
// lines, <br> on single newlines, everything escaped.
func TextToHTML(body string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, l := range lines {
			lines[i] = html.EscapeString(l)
		}
		fmt.Fprintf(&b, "<p>%s</p>", strings.Join(lines, "<br>"))
	}
	b.WriteString("</body></html>")
	return b.String()
}
