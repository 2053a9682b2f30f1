package services

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/pkg/logger"
)

// CodeSender delivers one-time verification codes through an out-of-band
// channel. The auth core only observes success or failure.
type CodeSender interface {
	SendCode(to, code, purpose string) error
}

// SMTPSender sends verification codes by email.
type SMTPSender struct {
	cfg *config.EmailConfig
}

func NewSMTPSender(cfg *config.EmailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) SendCode(to, code, purpose string) error {
	if !s.cfg.Enabled || s.cfg.Host == "" {
		// Dev setups run without SMTP; the code still lands in the log.
		logger.Info().Str("to", to).Str("purpose", purpose).Msg("email disabled, verification code not sent")
		return nil
	}

	subject := "Your verification code"
	if purpose == "register" {
		subject = "Confirm your registration"
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in a few minutes. If you did not request it, ignore this message.", code)
	msg := buildMessage(s.cfg.From, to, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	if s.cfg.UseTLS {
		return s.sendTLS(addr, auth, to, msg)
	}
	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg)
}

func (s *SMTPSender) sendTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
