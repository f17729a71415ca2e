package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender delivers mail through a plain SMTP endpoint with optional
// PLAIN auth. Credentials empty means unauthenticated relay, which is how
// internal mail exchangers are typically reached.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
}

func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, Username: username, Password: password}
}

func (s *SMTPSender) Send(_ context.Context, sender, recipient, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", sender)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if s.Username != "" && s.Password != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	if err := smtp.SendMail(addr, auth, sender, []string{recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", recipient, err)
	}
	return nil
}
