// Package notify holds the outbound delivery channels. Every channel
// implements the same one-shot Send; picking and wiring a channel is the
// caller's job.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "mailsched/pkg/logx"
)

var ErrNoChannel = errors.New("notify: no channel configured")

// Notifier sends one message to one recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Config selects and configures the delivery channel.
type Config struct {
	// Channel is "smtp", "telegram" or "log".
	Channel string `json:"channel"`
	// RatePerMin throttles outbound sends. Zero means no throttle.
	RatePerMin int `json:"rate_per_min"`

	SMTP     SMTPConfig     `json:"smtp"`
	Telegram TelegramConfig `json:"telegram"`
}

// New builds the configured channel.
func New(cfg Config, log logx.Logger) (Notifier, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var (
		n   Notifier
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Channel)) {
	case "smtp", "":
		n, err = NewSMTP(cfg.SMTP, log)
	case "telegram":
		n, err = NewTelegram(cfg.Telegram, log)
	case "log":
		n = NewLog(log)
	default:
		return nil, fmt.Errorf("notify: unknown channel %q", cfg.Channel)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RatePerMin > 0 {
		n = Limited(n, cfg.RatePerMin)
	}
	return n, nil
}

// logNotifier records sends instead of performing them. Useful for dry
// runs and local development without an SMTP server.
type logNotifier struct {
	log logx.Logger
}

func NewLog(log logx.Logger) Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &logNotifier{log: log.With(logx.String("channel", "log"))}
}

func (l *logNotifier) Send(_ context.Context, recipient, subject, body string) error {
	l.log.Info("send (dry-run)",
		logx.String("recipient", recipient),
		logx.String("subject", subject),
		logx.Int("body_len", len(body)),
		logx.Time("at", time.Now()),
	)
	return nil
}
