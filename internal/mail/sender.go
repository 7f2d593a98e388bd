// sender.go delivers rendered messages over SMTP. The Sender interface exists
// so callers (jobs, the request workflow) can be tested with a recording fake.
package mail

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"

	"github.com/groupkeeper/groupkeeper/internal/config"
	"github.com/groupkeeper/groupkeeper/internal/telemetry"
)

// Sender delivers one email to a set of recipients. kind labels the
// notification for metrics ("membership_request", "request_resolved",
// "edge_expired").
type Sender interface {
	Send(kind string, to []string, subject, body string) error
}

// SMTPSender delivers mail through the configured SMTP server
type SMTPSender struct {
	cfg    *config.NotificationsConfig
	logger *slog.Logger
}

// NewSMTPSender creates a sender from the notifications config
func NewSMTPSender(cfg *config.NotificationsConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Enabled reports whether mail can actually be sent. Callers should treat a
// disabled sender as a silent no-op rather than an error.
func (s *SMTPSender) Enabled() bool {
	return s.cfg.Enabled && s.cfg.SMTP.Host != ""
}

// Send composes the RFC 5322 message and delivers it. Returns nil without
// sending when notifications are disabled.
func (s *SMTPSender) Send(kind string, to []string, subject, body string) error {
	if !s.Enabled() {
		return nil
	}
	if len(to) == 0 {
		return nil
	}

	smtpCfg := &s.cfg.SMTP
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		smtpCfg.From, joinAddresses(to), subject,
	)
	msg := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", smtpCfg.Host, smtpCfg.Port)
	auth := smtp.PlainAuth("", smtpCfg.Username, smtpCfg.Password, smtpCfg.Host)

	var err error
	if smtpCfg.UseTLS {
		err = sendMailTLS(addr, smtpCfg.Host, auth, smtpCfg.From, to, msg)
	} else {
		err = smtp.SendMail(addr, auth, smtpCfg.From, to, msg)
	}
	if err != nil {
		s.logger.Error("notification email failed", "kind", kind, "recipients", len(to), "error", err)
		return err
	}

	telemetry.NotificationEmailsSentTotal.WithLabelValues(kind).Inc()
	s.logger.Debug("notification email sent", "kind", kind, "recipients", len(to), "subject", subject)
	return nil
}

func joinAddresses(to []string) string {
	out := ""
	for i, addr := range to {
		if i > 0 {
			out += ", "
		}
		out += addr
	}
	return out
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a message.
// If the TLS dial fails it falls back to smtp.SendMail, which performs the
// STARTTLS upgrade on port 587, so UseTLS=true always means an encrypted
// connection one way or the other.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
