package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/sentinelops/sentinel/internal/risk"
)

// SMTPNotifier emails events to a fixed set of recipients. Events below
// MinLevel are skipped so routine ALERT churn does not flood inboxes.
type SMTPNotifier struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	recipients []string
	minLevel   risk.Level
}

// NewSMTPNotifier creates an SMTPNotifier.
func NewSMTPNotifier(host string, port int, username, password, from string, recipients []string, minLevel risk.Level) *SMTPNotifier {
	return &SMTPNotifier{
		host:       host,
		port:       port,
		username:   username,
		password:   password,
		from:       from,
		recipients: recipients,
		minLevel:   minLevel,
	}
}

// Notify delivers a plain-text email for the event, one message per recipient.
func (s *SMTPNotifier) Notify(_ context.Context, ev Event) error {
	if ev.Level < s.minLevel {
		return nil
	}

	subject := fmt.Sprintf("[sentinel] %s threat on %s (risk %.2f)", ev.Level, ev.Subject, ev.FinalScore)
	body := strings.Join([]string{
		"Automated response notification",
		"",
		"Subject:        " + ev.Subject,
		fmt.Sprintf("Level:          %s", ev.Level),
		"Action taken:   " + ev.Action,
		fmt.Sprintf("Final score:    %.3f", ev.FinalScore),
		fmt.Sprintf("Network score:  %.3f", ev.NetworkScore),
		fmt.Sprintf("Behavior score: %.3f", ev.BehaviorScore),
		"Observed at:    " + ev.At.UTC().Format("2006-01-02 15:04:05 UTC"),
	}, "\r\n")

	for _, to := range s.recipients {
		if err := s.send(to, subject, body); err != nil {
			return fmt.Errorf("notify %s: %w", to, err)
		}
	}
	return nil
}

func (s *SMTPNotifier) send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	// Port 465 uses implicit TLS; 587 uses STARTTLS (smtp.SendMail handles this).
	if s.port == 465 {
		return s.sendImplicitTLS(addr, auth, to, []byte(msg))
	}
	return smtp.SendMail(addr, auth, s.from, []string{to}, []byte(msg))
}

func (s *SMTPNotifier) sendImplicitTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	host, _, _ := net.SplitHostPort(addr)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("smtp tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}
	return client.Quit()
}
