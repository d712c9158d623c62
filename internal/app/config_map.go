package app

import (
	"fmt"
	"strings"
	"time"

	"mailsched/internal/chatbot"
	"mailsched/internal/config"
	"mailsched/internal/dispatch"
	"mailsched/internal/notify"
	"mailsched/internal/storage"
	"mailsched/internal/webapi"
)

// Duration fields (timeouts, sweep_every, busy_timeout) arrive as Go
// duration strings and are parsed here, next to the services they feed.
// Empty means "use the service default"; negatives are rejected.

func durationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func durationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := durationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		// No storage section: keep everything in memory.
		return storage.Config{Driver: "memory"}, nil
	}
	sc := storage.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:   strings.TrimSpace(cfg.Storage.Path),
	}
	switch sc.Driver {
	case "", "memory":
		sc.Driver = "memory"
	case "sqlite":
		if sc.Path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required for sqlite")
		}
	default:
		return storage.Config{}, fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver)
	}
	bt, err := durationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	sc.BusyTimeout = bt
	return sc, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	timeout, err := durationOrDefault("notify.smtp.timeout", cfg.Notify.SMTP.Timeout, 30*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	if cfg.Notify.RatePerMin < 0 {
		return notify.Config{}, fmt.Errorf("notify.rate_per_min must be >= 0")
	}
	return notify.Config{
		Channel:    cfg.Notify.Channel,
		RatePerMin: cfg.Notify.RatePerMin,
		SMTP: notify.SMTPConfig{
			Host:     cfg.Notify.SMTP.Host,
			Port:     cfg.Notify.SMTP.Port,
			Username: cfg.Notify.SMTP.Username,
			Password: cfg.Notify.SMTP.Password,
			From:     cfg.Notify.SMTP.From,
			Timeout:  timeout,
		},
		Telegram: notify.TelegramConfig{
			Token:         cfg.Notify.Telegram.Token,
			DefaultChatID: cfg.Notify.Telegram.DefaultChatID,
		},
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	defTimeout, err := durationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 30*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	sweep, err := durationOrDefault("scheduler.sweep_every", cfg.Scheduler.SweepEvery, time.Minute)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		DefaultTimeout: defTimeout,
		Timezone:       cfg.Scheduler.Timezone,
		SweepEvery:     sweep,
	}, nil
}

func mapServerConfig(cfg *config.Config) (webapi.Config, error) {
	read, err := durationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 15*time.Second)
	if err != nil {
		return webapi.Config{}, err
	}
	write, err := durationOrDefault("server.write_timeout", cfg.Server.WriteTimeout, 30*time.Second)
	if err != nil {
		return webapi.Config{}, err
	}
	shutdown, err := durationOrDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return webapi.Config{}, err
	}
	return webapi.Config{
		Enabled:         cfg.Server.Enabled,
		Addr:            cfg.Server.Addr,
		ReadTimeout:     read,
		WriteTimeout:    write,
		ShutdownTimeout: shutdown,
	}, nil
}

func mapChatTelegramConfig(cfg *config.Config) (chatbot.TelegramConfig, error) {
	poll, err := durationOrDefault("chat.telegram.poll_timeout", cfg.Chat.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return chatbot.TelegramConfig{}, err
	}
	if cfg.Chat.Telegram.ReplyRatePerSec < 0 {
		return chatbot.TelegramConfig{}, fmt.Errorf("chat.telegram.reply_rate_per_sec must be >= 0")
	}
	if cfg.Chat.Telegram.Enabled && strings.TrimSpace(cfg.Chat.Telegram.Token) == "" {
		return chatbot.TelegramConfig{}, fmt.Errorf("chat.telegram.token is required when enabled")
	}
	return chatbot.TelegramConfig{
		Enabled:         cfg.Chat.Telegram.Enabled,
		Token:           cfg.Chat.Telegram.Token,
		PollTimeout:     poll,
		ReplyRatePerSec: cfg.Chat.Telegram.ReplyRatePerSec,
	}, nil
}
