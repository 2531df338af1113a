package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/nasda-team/nasda/config"
)

// ErrMailNotConfigured is returned when no SMTP host or sender is set.
var ErrMailNotConfigured = errors.New("smtp not configured")

// SMTPMailer sends plain text mail with the SMTP settings it was built from.
type SMTPMailer struct {
	cfg config.AppConfig
}

// NewSMTPMailer captures the SMTP section of cfg.
func NewSMTPMailer(cfg config.AppConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendMail sends a UTF-8 plain text message to a single recipient.
func (m *SMTPMailer) SendMail(to, subject, body string) error {
	cfg := m.cfg
	if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
		return ErrMailNotConfigured
	}
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
	auth := smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	msg := buildMessage(cfg.SMTPFromName, cfg.SMTPFrom, to, subject, body)

	if !cfg.SMTPTLS {
		return smtp.SendMail(addr, auth, cfg.SMTPFrom, []string{to}, msg)
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	c, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.SMTPHost}); err != nil {
			return err
		}
	}
	if cfg.SMTPUsername != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.SMTPFrom); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(fromName, from, to, subject, body string) []byte {
	var msg strings.Builder
	header := func(k, v string) {
		msg.WriteString(k)
		msg.WriteString(": ")
		msg.WriteString(v)
		msg.WriteString("\r\n")
	}
	header("From", fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), from))
	header("To", to)
	header("Subject", mime.BEncoding.Encode("UTF-8", subject))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}
