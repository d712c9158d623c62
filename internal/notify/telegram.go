package notify

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "mailsched/pkg/logx"
)

// TelegramConfig delivers scheduled messages into a Telegram chat instead
// of a mailbox. The recipient string is interpreted as a chat id; when it
// is not numeric, the configured default chat receives the message.
type TelegramConfig struct {
	Token         string `json:"token"`
	DefaultChatID int64  `json:"default_chat_id"`
}

type telegramNotifier struct {
	cfg TelegramConfig
	log logx.Logger
	bot *tele.Bot
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	// Send-only: no poller. The interactive bot lives elsewhere.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &telegramNotifier{
		cfg: cfg,
		log: log.With(logx.String("channel", "telegram")),
		bot: b,
	}, nil
}

const telegramTextLimit = 4000

func (t *telegramNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	chatID := t.cfg.DefaultChatID
	if id, err := strconv.ParseInt(strings.TrimSpace(recipient), 10, 64); err == nil {
		chatID = id
	}
	if chatID == 0 {
		return errors.New("telegram: no chat id")
	}

	text := body
	if subject != "" {
		text = "*" + subject + "*\n\n" + body
	}
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, telegramTextLimit) {
		if _, err := t.bot.Send(chat, chunk, &tele.SendOptions{ParseMode: tele.ModeMarkdown}); err != nil {
			return err
		}
	}
	t.log.Debug("sent", logx.Int64("chat_id", chatID), logx.Time("at", time.Now()))
	return nil
}

// splitText chops long messages at newline boundaries where possible.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
