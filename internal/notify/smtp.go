package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	logx "mailsched/pkg/logx"
)

// SMTPConfig is a plain submission setup: PLAIN auth over the server's
// STARTTLS, the way most providers expose port 587.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	// Timeout bounds the whole SMTP conversation.
	Timeout time.Duration `json:"timeout"`
}

type smtpNotifier struct {
	cfg SMTPConfig
	log logx.Logger

	// sendMail is swappable for tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg SMTPConfig, log logx.Logger) (Notifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &smtpNotifier{
		cfg:      cfg,
		log:      log.With(logx.String("channel", "smtp")),
		sendMail: smtp.SendMail,
	}, nil
}

func (s *smtpNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	if strings.TrimSpace(recipient) == "" {
		return errors.New("smtp: empty recipient")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := buildMessage(s.cfg.From, recipient, subject, body)

	// smtp.SendMail has no context hook; run it on the side and race the
	// deadline so a wedged server cannot hold a dispatch worker forever.
	tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.sendMail(addr, auth, s.cfg.From, []string{recipient}, msg) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		s.log.Debug("sent", logx.String("recipient", recipient))
		return nil
	case <-tctx.Done():
		return fmt.Errorf("smtp send: %w", tctx.Err())
	}
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF so user input cannot inject extra headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
