package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"creditscout/internal/logger"
)

// Sender delivers report emails over implicit-TLS SMTP (port 465 style).
// Credentials are resolved from environment variables so they never land in
// the config file.
type Sender struct {
	server string
	port   int
	user   string
	pass   string
	to     string
}

// Config configures the SMTP sender.
type Config struct {
	Server  string
	Port    int
	UserEnv string
	PassEnv string
	To      string
}

// NewSender validates configuration and credentials up front so a pipeline
// run fails before spending API tokens, not after.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.Server == "" {
		cfg.Server = "smtp.qq.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	user := os.Getenv(cfg.UserEnv)
	pass := os.Getenv(cfg.PassEnv)

	var missing []string
	if user == "" {
		missing = append(missing, cfg.UserEnv)
	}
	if pass == "" {
		missing = append(missing, cfg.PassEnv)
	}
	if cfg.To == "" {
		missing = append(missing, "email.to")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing email configuration: %s", strings.Join(missing, ", "))
	}
	return &Sender{
		server: cfg.Server,
		port:   cfg.Port,
		user:   user,
		pass:   pass,
		to:     cfg.To,
	}, nil
}

// Send delivers one plain-text message.
func (s *Sender) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.server, s.port)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.server})
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, s.server)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.user, s.pass, s.server)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(s.user); err != nil {
		return err
	}
	if err := client.Rcpt(s.to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	msg := buildMessage(s.user, s.to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	logger.Info("report email sent", "to", s.to, "subject", subject)
	return client.Quit()
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}
